package embedding

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writeTestPNG(t *testing.T, w, h int, c color.Color) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	path := filepath.Join(t.TempDir(), "test.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPreprocessImage(t *testing.T) {
	path := writeTestPNG(t, 64, 48, color.RGBA{R: 255, A: 255})

	data, err := PreprocessImage(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 3*224*224 {
		t.Fatalf("len = %d, want %d", len(data), 3*224*224)
	}

	// A pure red image: red channel normalized from 1.0, green/blue from 0.0.
	plane := 224 * 224
	wantR := (1.0 - clipMean[0]) / clipStd[0]
	wantG := (0.0 - clipMean[1]) / clipStd[1]
	if diff := data[0] - wantR; diff > 0.01 || diff < -0.01 {
		t.Errorf("red channel = %f, want %f", data[0], wantR)
	}
	if diff := data[plane] - wantG; diff > 0.01 || diff < -0.01 {
		t.Errorf("green channel = %f, want %f", data[plane], wantG)
	}
}

func TestPreprocessImage_Errors(t *testing.T) {
	if _, err := PreprocessImage("/nonexistent.png"); err == nil {
		t.Error("expected error for missing file")
	}
	bad := filepath.Join(t.TempDir(), "bad.png")
	if err := os.WriteFile(bad, []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := PreprocessImage(bad); err == nil {
		t.Error("expected decode error")
	}
}

func TestMockEmbedder_Deterministic(t *testing.T) {
	e := NewMockEmbedder(16)
	ctx := context.Background()

	a, err := e.EmbedText(ctx, "oak table")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := e.EmbedText(ctx, "oak table")
	other, _ := e.EmbedText(ctx, "velvet chair")

	var norm float64
	same, differs := true, false
	for i := range a {
		norm += float64(a[i] * a[i])
		if a[i] != b[i] {
			same = false
		}
		if a[i] != other[i] {
			differs = true
		}
	}
	if !same {
		t.Error("same text should embed identically")
	}
	if !differs {
		t.Error("different texts should embed differently")
	}
	if norm < 0.99 || norm > 1.01 {
		t.Errorf("norm^2 = %f, want 1", norm)
	}
}

func TestMockEmbedder_Image(t *testing.T) {
	path := writeTestPNG(t, 8, 8, color.RGBA{B: 255, A: 255})
	e := NewMockEmbedder(16)
	ctx := context.Background()

	a, err := e.EmbedImage(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := e.EmbedImage(ctx, path)
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same file should embed identically")
		}
	}
	if _, err := e.EmbedImage(ctx, "/nonexistent.png"); err == nil {
		t.Error("expected error for missing file")
	}
}
