package ocr

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func line(text string, confidence float32, page int32) types.Block {
	return types.Block{
		BlockType:  types.BlockTypeLine,
		Text:       aws.String(text),
		Confidence: aws.Float32(confidence),
		Page:       aws.Int32(page),
	}
}

func TestRenderLinesDropsLowConfidenceLines(t *testing.T) {
	blocks := []types.Block{
		line("The quarterly report is attached.", 95, 1),
		line("x$#@ l1NeS of sm udge", 42, 1),
		line("Please review before Friday.", 96, 1),
	}

	res := renderLines(blocks, 80)
	require.NotNil(t, res)

	assert.Contains(t, res.Text, "quarterly report")
	assert.Contains(t, res.Text, "before Friday")
	assert.NotContains(t, res.Text, "sm udge")
	assert.Equal(t, 9, res.WordCount)

	// The average still reflects every recognized line, smudge included.
	assert.InDelta(t, (95.0+42.0+96.0)/3, res.Confidence, 0.01)
}

func TestRenderLinesInsertsPageMarkers(t *testing.T) {
	blocks := []types.Block{
		line("First page text.", 99, 1),
		line("Second page text.", 99, 2),
	}

	res := renderLines(blocks, 80)
	assert.Contains(t, res.Text, "--- Page 2 ---")
}

func TestRenderLinesAllBelowFloor(t *testing.T) {
	blocks := []types.Block{
		line("garbled", 30, 1),
		line("noise", 25, 1),
	}

	res := renderLines(blocks, 80)
	assert.Empty(t, res.Text)
	assert.Zero(t, res.WordCount)
	assert.InDelta(t, 27.5, res.Confidence, 0.01)
}

func TestRenderAnalysisDropsLowConfidenceFreeText(t *testing.T) {
	blocks := []types.Block{
		line("Invoice number 12345 enclosed.", 91, 1),
		line("~~ un re ad ab le ~~", 50, 1),
	}

	res := renderAnalysis(blocks, 75)
	require.NotNil(t, res)

	assert.Contains(t, res.Text, "Invoice number")
	assert.NotContains(t, res.Text, "un re ad")
	assert.InDelta(t, (91.0+50.0)/2, res.Confidence, 0.01)
}
