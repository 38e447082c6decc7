package ocr

import (
	"context"
	"fmt"
	"sort"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"docq/internal/config"
)

// Textract API limit for synchronous calls with inline bytes.
const maxDocumentBytes = 10 * 1024 * 1024

// Line-confidence floors when the config leaves them unset. Lines below the
// floor are noise and get dropped from the rendered text; the advanced pass
// tolerates slightly worse lines because table and form regions recognize
// less cleanly.
const (
	defaultLineFloor    = 80
	defaultLineFloorAdv = 75
)

// TextractClient implements Client on AWS Textract.
type TextractClient struct {
	client       *textract.Client
	maxBytes     int
	lineFloor    float64
	lineFloorAdv float64
}

// NewTextractClient creates an OCR client backed by AWS Textract.
func NewTextractClient(ctx context.Context, cfg *config.Config) (*TextractClient, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Broker.Region),
	}
	if cfg.Broker.AccessKey != "" && cfg.Broker.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.Broker.AccessKey, cfg.Broker.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for Textract: %w", err)
	}

	maxBytes := cfg.Extraction.MaxOCRBytes
	if maxBytes <= 0 || maxBytes > maxDocumentBytes {
		maxBytes = maxDocumentBytes
	}
	lineFloor := cfg.Extraction.OCRConfidence
	if lineFloor <= 0 {
		lineFloor = defaultLineFloor
	}
	lineFloorAdv := cfg.Extraction.OCRConfidenceAdv
	if lineFloorAdv <= 0 {
		lineFloorAdv = defaultLineFloorAdv
	}

	return &TextractClient{
		client:       textract.NewFromConfig(awsCfg),
		maxBytes:     maxBytes,
		lineFloor:    lineFloor,
		lineFloorAdv: lineFloorAdv,
	}, nil
}

// DetectText runs the text-only recognition pass.
func (t *TextractClient) DetectText(ctx context.Context, doc []byte) (*Result, error) {
	if err := t.checkSize(doc); err != nil {
		return nil, err
	}

	out, err := t.client.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: &types.Document{Bytes: doc},
	})
	if err != nil {
		return nil, fmt.Errorf("Textract DetectDocumentText failed: %w", err)
	}
	return renderLines(out.Blocks, t.lineFloor), nil
}

// Analyze runs the full recognition pass with table and form reconstruction.
func (t *TextractClient) Analyze(ctx context.Context, doc []byte) (*Result, error) {
	if err := t.checkSize(doc); err != nil {
		return nil, err
	}

	out, err := t.client.AnalyzeDocument(ctx, &textract.AnalyzeDocumentInput{
		Document:     &types.Document{Bytes: doc},
		FeatureTypes: []types.FeatureType{types.FeatureTypeTables, types.FeatureTypeForms},
	})
	if err != nil {
		return nil, fmt.Errorf("Textract AnalyzeDocument failed: %w", err)
	}
	return renderAnalysis(out.Blocks, t.lineFloorAdv), nil
}

func (t *TextractClient) checkSize(doc []byte) error {
	if len(doc) > t.maxBytes {
		return fmt.Errorf("document size %d exceeds OCR limit of %d bytes", len(doc), t.maxBytes)
	}
	return nil
}

// renderLines flattens LINE blocks in reading order, inserting a marker
// between pages. Lines below the confidence floor are left out of the text;
// the reported confidence still averages every recognized line so the caller
// sees how clean the whole page was.
func renderLines(blocks []types.Block, floor float64) *Result {
	var sb strings.Builder
	var confSum float64
	lines := 0
	currentPage := int32(1)

	for _, block := range blocks {
		if block.BlockType != types.BlockTypeLine || block.Text == nil {
			continue
		}
		if block.Confidence != nil {
			confSum += float64(*block.Confidence)
			lines++
		}
		if lineBelowFloor(block, floor) {
			continue
		}
		if page := blockPage(block); page != currentPage {
			fmt.Fprintf(&sb, "\n--- Page %d ---\n\n", page)
			currentPage = page
		}
		sb.WriteString(*block.Text)
		sb.WriteString("\n")
	}

	text := strings.TrimSpace(sb.String())
	result := &Result{Text: text, WordCount: len(strings.Fields(text))}
	if lines > 0 {
		result.Confidence = confSum / float64(lines)
	}
	return result
}

// renderAnalysis renders the analyzed document: free text first, then tables
// as markdown, then form fields as key/value lines. Free-text lines below the
// confidence floor are dropped the same way renderLines drops them.
func renderAnalysis(blocks []types.Block, floor float64) *Result {
	byID := make(map[string]types.Block, len(blocks))
	for _, block := range blocks {
		if block.Id != nil {
			byID[*block.Id] = block
		}
	}

	// Words living inside table cells are rendered through the table, not as
	// free text.
	tableWords := make(map[string]bool)
	for _, block := range blocks {
		if block.BlockType != types.BlockTypeCell {
			continue
		}
		for _, id := range childIDs(block) {
			tableWords[id] = true
		}
	}

	var sb strings.Builder
	var confSum float64
	lines := 0
	currentPage := int32(1)

	for _, block := range blocks {
		if block.BlockType != types.BlockTypeLine || block.Text == nil {
			continue
		}
		if block.Confidence != nil {
			confSum += float64(*block.Confidence)
			lines++
		}
		if lineBelowFloor(block, floor) || lineInsideTable(block, tableWords) {
			continue
		}
		if page := blockPage(block); page != currentPage {
			fmt.Fprintf(&sb, "\n--- Page %d ---\n\n", page)
			currentPage = page
		}
		sb.WriteString(*block.Text)
		sb.WriteString("\n")
	}

	for _, block := range blocks {
		if block.BlockType != types.BlockTypeTable {
			continue
		}
		if table := renderTable(block, byID); table != "" {
			sb.WriteString("\n")
			sb.WriteString(table)
			sb.WriteString("\n")
		}
	}

	if fields := renderForms(blocks, byID); fields != "" {
		sb.WriteString("\n")
		sb.WriteString(fields)
	}

	text := strings.TrimSpace(sb.String())
	result := &Result{Text: text, WordCount: len(strings.Fields(text))}
	if lines > 0 {
		result.Confidence = confSum / float64(lines)
	}
	return result
}

// renderTable reconstructs one TABLE block as a markdown table.
func renderTable(table types.Block, byID map[string]types.Block) string {
	type cell struct {
		row, col int32
		text     string
	}
	var cells []cell
	maxCol := int32(0)

	for _, id := range childIDs(table) {
		block, ok := byID[id]
		if !ok || block.BlockType != types.BlockTypeCell || block.RowIndex == nil || block.ColumnIndex == nil {
			continue
		}
		cells = append(cells, cell{
			row:  *block.RowIndex,
			col:  *block.ColumnIndex,
			text: childText(block, byID),
		})
		if *block.ColumnIndex > maxCol {
			maxCol = *block.ColumnIndex
		}
	}
	if len(cells) == 0 || maxCol == 0 {
		return ""
	}

	rows := make(map[int32][]string)
	for _, c := range cells {
		row := rows[c.row]
		for int32(len(row)) < maxCol {
			row = append(row, "")
		}
		row[c.col-1] = c.text
		rows[c.row] = row
	}

	rowIndexes := make([]int32, 0, len(rows))
	for r := range rows {
		rowIndexes = append(rowIndexes, r)
	}
	sort.Slice(rowIndexes, func(i, j int) bool { return rowIndexes[i] < rowIndexes[j] })

	var sb strings.Builder
	for i, r := range rowIndexes {
		sb.WriteString("| ")
		sb.WriteString(strings.Join(rows[r], " | "))
		sb.WriteString(" |\n")
		if i == 0 {
			sb.WriteString("|")
			sb.WriteString(strings.Repeat(" --- |", int(maxCol)))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// renderForms renders KEY_VALUE_SET pairs as "**key:** value" lines.
func renderForms(blocks []types.Block, byID map[string]types.Block) string {
	var sb strings.Builder
	for _, block := range blocks {
		if block.BlockType != types.BlockTypeKeyValueSet || !hasEntityType(block, types.EntityTypeKey) {
			continue
		}
		key := childText(block, byID)
		if key == "" {
			continue
		}

		var value string
		for _, rel := range block.Relationships {
			if rel.Type != types.RelationshipTypeValue {
				continue
			}
			for _, id := range rel.Ids {
				if valueBlock, ok := byID[id]; ok {
					value = childText(valueBlock, byID)
				}
			}
		}
		fmt.Fprintf(&sb, "**%s:** %s\n", key, value)
	}
	return sb.String()
}

func childIDs(block types.Block) []string {
	var ids []string
	for _, rel := range block.Relationships {
		if rel.Type == types.RelationshipTypeChild {
			ids = append(ids, rel.Ids...)
		}
	}
	return ids
}

// childText joins the WORD children of a block.
func childText(block types.Block, byID map[string]types.Block) string {
	var words []string
	for _, id := range childIDs(block) {
		child, ok := byID[id]
		if !ok {
			continue
		}
		switch child.BlockType {
		case types.BlockTypeWord:
			if child.Text != nil {
				words = append(words, *child.Text)
			}
		case types.BlockTypeSelectionElement:
			if child.SelectionStatus == types.SelectionStatusSelected {
				words = append(words, "[x]")
			} else {
				words = append(words, "[ ]")
			}
		}
	}
	return strings.Join(words, " ")
}

// lineBelowFloor reports whether a line's confidence misses the floor. Lines
// without a confidence value are kept.
func lineBelowFloor(block types.Block, floor float64) bool {
	return block.Confidence != nil && float64(*block.Confidence) < floor
}

func lineInsideTable(line types.Block, tableWords map[string]bool) bool {
	ids := childIDs(line)
	if len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		if !tableWords[id] {
			return false
		}
	}
	return true
}

func hasEntityType(block types.Block, et types.EntityType) bool {
	for _, t := range block.EntityTypes {
		if t == et {
			return true
		}
	}
	return false
}

func blockPage(block types.Block) int32 {
	if block.Page != nil && *block.Page > 0 {
		return *block.Page
	}
	return 1
}
