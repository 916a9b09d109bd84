package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/mitsuke/internal/models"
)

func sampleResponse() *models.TextSearchResponse {
	return &models.TextSearchResponse{
		Query: "red sofa",
		Results: []*models.SearchResult{
			{
				Path:     "/data/images/alma.jpg",
				Score:    0.8123,
				Rank:     1,
				Metadata: models.Metadata{"name": "Alma", "category": "sofa"},
			},
		},
		Total: 1,
	}
}

func TestWriteTextSearchResults_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTextSearchResults(&buf, sampleResponse(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"red sofa", "alma.jpg", "0.8123", "Alma", "sofa"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteTextSearchResults_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTextSearchResults(&buf, sampleResponse(), OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded models.TextSearchResponse
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("json output not parseable: %v", err)
	}
	if decoded.Query != "red sofa" || decoded.Total != 1 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestParseOutputFormat(t *testing.T) {
	if f, err := ParseOutputFormat("json"); err != nil || f != OutputJSON {
		t.Errorf("json: %v, %v", f, err)
	}
	if f, err := ParseOutputFormat(""); err != nil || f != OutputText {
		t.Errorf("empty: %v, %v", f, err)
	}
	if _, err := ParseOutputFormat("yaml"); err == nil {
		t.Error("expected error for unknown format")
	}
}
