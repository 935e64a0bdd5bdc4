package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"prdsync.app/prdsync/common/llm"
	"prdsync.app/prdsync/common/logger"
	"prdsync.app/prdsync/internal/model"
)

// Extractor runs the whole-document feature extraction used on the
// fresh-create path: no diff, no existing items, one record per feature the
// document describes.
type Extractor struct {
	oracle    llm.Client
	maxTokens int
}

func NewExtractor(oracle llm.Client) *Extractor {
	return &Extractor{oracle: oracle, maxTokens: 16384}
}

type extractSchema struct {
	Features []featureSchema `json:"features" jsonschema:"required,description=One record per discrete implementable feature"`
}

func (e *Extractor) Extract(ctx context.Context, content, documentPath string) ([]model.NewFeatureRecord, error) {
	req := llm.Request{
		SystemPrompt: extractSystemPrompt,
		UserPrompt:   buildExtractUserPrompt(content, documentPath),
		SchemaName:   "feature_extraction",
		Schema:       llm.GenerateSchema[extractSchema](),
		MaxTokens:    e.maxTokens,
		Temperature:  llm.Temp(0),
	}

	response, _, err := e.oracle.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("extraction oracle call: %w", err)
	}

	payload, err := ExtractJSON(response)
	if err != nil {
		slog.ErrorContext(ctx, "extraction response carried no JSON",
			"response", logger.Truncate(response, 500))
		return nil, fmt.Errorf("parsing extraction response: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, fmt.Errorf("decoding extraction response: %w", err)
	}

	v, ok := pick(raw, "features", "new_features", "feature_records")
	if !ok {
		return nil, fmt.Errorf("extraction response has no features field")
	}

	var rawFeatures []map[string]json.RawMessage
	if err := json.Unmarshal(v, &rawFeatures); err != nil {
		return nil, fmt.Errorf("decoding features: %w", err)
	}

	features := make([]model.NewFeatureRecord, 0, len(rawFeatures))
	for _, rawFeature := range rawFeatures {
		feature := decodeFeature(rawFeature)
		if feature.Title == "" {
			slog.WarnContext(ctx, "dropping extracted feature without a title")
			continue
		}
		features = append(features, feature)
	}

	slog.InfoContext(ctx, "features extracted", "count", len(features), "document", documentPath)
	return features, nil
}
