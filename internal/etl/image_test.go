package etl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mutsuki-Y/faq-llm-playground/internal/knowledge"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/testutil"
)

func writeFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("fake image bytes"), 0o644))
	return path
}

func TestImagesList(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.png")
	writeFile(t, dir, "a.jpg")
	writeFile(t, dir, "c.JPEG")
	writeFile(t, dir, "notes.txt")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0o755))

	p := NewImages(testutil.NewMockGateway("", 8))
	paths, err := p.List(dir)
	require.NoError(t, err)

	require.Len(t, paths, 3)
	assert.Equal(t, filepath.Join(dir, "a.jpg"), paths[0])
	assert.Equal(t, filepath.Join(dir, "b.png"), paths[1])
	assert.Equal(t, filepath.Join(dir, "c.JPEG"), paths[2])
}

func TestImagesListMissingDir(t *testing.T) {
	p := NewImages(testutil.NewMockGateway("", 8))
	paths, err := p.List(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestImagesProcess(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "diagram.png")

	gateway := testutil.NewMockGateway("", 8)
	gateway.SetCaption(path, "ネットワーク構成図")

	unit, err := NewImages(gateway).Process(t.Context(), path)
	require.NoError(t, err)

	assert.Equal(t, knowledge.KindImage, unit.Kind)
	assert.Equal(t, "ネットワーク構成図", unit.Content)
	assert.Equal(t, path, unit.Metadata[knowledge.MetaImagePath])
	assert.Equal(t, "diagram.png", unit.Metadata[knowledge.MetaOriginFile])
}

func TestImagesProcessBlankCaption(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "blank.png")

	gateway := testutil.NewMockGateway("", 8)
	gateway.SetCaption(path, "   ")

	_, err := NewImages(gateway).Process(t.Context(), path)
	assert.ErrorIs(t, err, ErrEmptyCaption)
}

func TestImagesProcessCaptionError(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "broken.png")

	gateway := testutil.NewMockGateway("", 8)
	gateway.QueueError(assert.AnError)

	_, err := NewImages(gateway).Process(t.Context(), path)
	assert.ErrorIs(t, err, assert.AnError)
}
