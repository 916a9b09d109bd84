package embedding

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// CLIP input resolution.
const inputSize = 224

// Per-channel normalization constants used by the CLIP image encoder.
var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// PreprocessImage decodes the image at path, resizes it to 224x224 and returns
// normalized pixel values in CHW order, ready for the image encoder.
func PreprocessImage(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, inputSize, inputSize))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	data := make([]float32, 3*inputSize*inputSize)
	plane := inputSize * inputSize
	for y := 0; y < inputSize; y++ {
		for x := 0; x < inputSize; x++ {
			i := dst.PixOffset(x, y)
			pos := y*inputSize + x
			for c := 0; c < 3; c++ {
				v := float32(dst.Pix[i+c]) / 255.0
				data[c*plane+pos] = (v - clipMean[c]) / clipStd[c]
			}
		}
	}
	return data, nil
}
