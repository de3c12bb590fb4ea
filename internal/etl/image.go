package etl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Mutsuki-Y/faq-llm-playground/internal/knowledge"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/llm"
)

// imageExtensions are the asset types the pipeline ingests.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// Images turns image assets into captioned knowledge units.
type Images struct {
	gateway llm.Client
}

// NewImages creates an image processor backed by the given gateway.
func NewImages(gateway llm.Client) *Images {
	return &Images{gateway: gateway}
}

// List returns the image files directly under dir, sorted by name.
// A missing directory yields an empty list, not an error: image assets
// are optional.
func (p *Images) List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading image directory %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Process captions one image and wraps the result as an image unit.
// A blank caption rejects the image with ErrEmptyCaption; an uncaptioned
// unit would be unsearchable.
func (p *Images) Process(ctx context.Context, path string) (knowledge.Unit, error) {
	caption, err := p.gateway.Caption(ctx, path)
	if err != nil {
		return knowledge.Unit{}, fmt.Errorf("captioning %s: %w", path, err)
	}
	if strings.TrimSpace(caption) == "" {
		return knowledge.Unit{}, fmt.Errorf("%w: %s", ErrEmptyCaption, path)
	}

	return knowledge.Unit{
		ID:      uuid.New(),
		Kind:    knowledge.KindImage,
		Content: caption,
		Metadata: map[string]string{
			knowledge.MetaImagePath:  path,
			knowledge.MetaOriginFile: filepath.Base(path),
		},
		CreatedAt: time.Now(),
	}, nil
}
