package broker

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedrivePolicyDocument(t *testing.T) {
	doc := redrivePolicy("arn:aws:sqs:us-east-1:123456789012:docq-processing-dlq", 5)

	var policy map[string]string
	require.NoError(t, json.Unmarshal([]byte(doc), &policy))
	assert.Equal(t, "arn:aws:sqs:us-east-1:123456789012:docq-processing-dlq", policy["deadLetterTargetArn"])
	assert.Equal(t, "5", policy["maxReceiveCount"])
}

func TestRedrivePolicyDefaultsReceiveCount(t *testing.T) {
	doc := redrivePolicy("arn:aws:sqs:us-east-1:123456789012:docq-maintenance-dlq", 0)

	var policy map[string]string
	require.NoError(t, json.Unmarshal([]byte(doc), &policy))
	assert.Equal(t, "3", policy["maxReceiveCount"])
}
