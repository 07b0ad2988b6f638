// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package attach

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/genstudio/internal/model"
)

// Defaults for the pipeline.
const (
	// DefaultMaxFileBytes caps a single upload.
	DefaultMaxFileBytes int64 = 20 * 1024 * 1024
)

// DefaultAllowedExtensions is the upload allow-list used when none is configured.
var DefaultAllowedExtensions = []string{
	".png", ".jpg", ".jpeg", ".webp", ".gif",
	".pdf", ".txt", ".md", ".csv", ".json",
}

// Error variables for attachment preparation.
var (
	// ErrExtensionNotAllowed indicates the file type is not on the allow-list.
	ErrExtensionNotAllowed = errors.New("file type not allowed")

	// ErrFileTooLarge indicates the file exceeds the size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrInvalidDataURL indicates a malformed data URL.
	ErrInvalidDataURL = errors.New("invalid data URL")
)

// Rejection records one file that could not be attached.
type Rejection struct {
	Name string
	Path string
	Err  error
}

// Error implements the error interface.
func (r Rejection) Error() string {
	return fmt.Sprintf("%s: %v", r.Name, r.Err)
}

// Unwrap returns the underlying cause.
func (r Rejection) Unwrap() error {
	return r.Err
}

// =============================================================================
// PIPELINE
// =============================================================================

// Options configures a Pipeline.
type Options struct {
	AllowedExtensions []string
	MaxFileBytes      int64
	Assets            AssetSource
	Logger            *log.Logger
}

// Pipeline validates and encodes files and asset references into pending
// attachments. It keeps no queue; the session controller owns that.
type Pipeline struct {
	allowed  map[string]struct{}
	maxBytes int64
	assets   AssetSource
	logger   *log.Logger
}

// New creates a pipeline, filling unset options with defaults.
func New(opts Options) *Pipeline {
	exts := opts.AllowedExtensions
	if len(exts) == 0 {
		exts = DefaultAllowedExtensions
	}
	allowed := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		allowed[normalizeExt(ext)] = struct{}{}
	}

	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = DefaultMaxFileBytes
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	return &Pipeline{
		allowed:  allowed,
		maxBytes: opts.MaxFileBytes,
		assets:   opts.Assets,
		logger:   opts.Logger,
	}
}

// Allowed reports whether the extension of name is on the allow-list.
func (p *Pipeline) Allowed(name string) bool {
	_, ok := p.allowed[normalizeExt(filepath.Ext(name))]
	return ok
}

// AddFiles prepares every path independently. A rejected or unreadable file
// never affects the others.
func (p *Pipeline) AddFiles(paths []string) ([]model.PendingAttachment, []Rejection) {
	var accepted []model.PendingAttachment
	var rejected []Rejection

	for _, fp := range paths {
		att, err := p.prepareFile(fp)
		if err != nil {
			rejected = append(rejected, Rejection{Name: displayName(fp), Path: fp, Err: err})
			continue
		}
		accepted = append(accepted, att)
	}

	return accepted, rejected
}

func (p *Pipeline) prepareFile(fp string) (model.PendingAttachment, error) {
	name := displayName(fp)
	if !p.Allowed(name) {
		return model.PendingAttachment{}, fmt.Errorf("%w: %s", ErrExtensionNotAllowed, filepath.Ext(name))
	}

	f, err := os.Open(fp)
	if err != nil {
		return model.PendingAttachment{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return model.PendingAttachment{}, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return model.PendingAttachment{}, fmt.Errorf("%s is a directory", name)
	}
	if info.Size() > p.maxBytes {
		return model.PendingAttachment{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, info.Size(), p.maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(f, p.maxBytes+1))
	if err != nil {
		return model.PendingAttachment{}, fmt.Errorf("failed to read file: %w", err)
	}
	if int64(len(data)) > p.maxBytes {
		return model.PendingAttachment{}, fmt.Errorf("%w: exceeds %d bytes", ErrFileTooLarge, p.maxBytes)
	}

	mimeType := DetectMIME(name, data)
	dataURL := BuildDataURL(mimeType, data)
	_, payload, err := SplitDataURL(dataURL)
	if err != nil {
		return model.PendingAttachment{}, err
	}

	att := model.PendingAttachment{
		ID:     model.NewID(),
		Name:   name,
		Data:   payload,
		MIME:   mimeType,
		Size:   int64(len(data)),
		Source: model.SourceUpload,
	}
	if IsImage(mimeType) {
		att.Preview = dataURL
	}
	return att, nil
}

// AddAssetReference prepares a reference to an asset already in the library.
// Image assets get a thumbnail preview when the asset source can supply one;
// a failed thumbnail keeps the reference without a preview.
func (p *Pipeline) AddAssetReference(ctx context.Context, assetPath string) (model.PendingAttachment, error) {
	assetPath = strings.TrimSpace(assetPath)
	if assetPath == "" {
		return model.PendingAttachment{}, errors.New("empty asset path")
	}

	name := norm.NFC.String(path.Base(filepath.ToSlash(assetPath)))
	if !p.Allowed(name) {
		return model.PendingAttachment{}, Rejection{
			Name: name,
			Path: assetPath,
			Err:  fmt.Errorf("%w: %s", ErrExtensionNotAllowed, path.Ext(name)),
		}
	}

	att := model.PendingAttachment{
		ID:     model.NewID(),
		Name:   name,
		Path:   assetPath,
		MIME:   mimeByExtension(name),
		Source: model.SourceAsset,
	}

	if p.assets == nil {
		return att, nil
	}

	info, err := p.assets.Stat(ctx, assetPath)
	if err != nil {
		return model.PendingAttachment{}, Rejection{Name: name, Path: assetPath, Err: err}
	}
	att.Size = info.Size
	if info.MIME != "" && info.MIME != "application/octet-stream" {
		att.MIME = info.MIME
	}

	if IsImage(att.MIME) {
		thumb, thumbMIME, err := p.assets.Thumbnail(ctx, assetPath)
		if err != nil {
			p.logger.Printf("ASSET_THUMBNAIL_FAILED | path=%s error=%v", assetPath, err)
		} else {
			if thumbMIME == "" {
				thumbMIME = att.MIME
			}
			att.Preview = BuildDataURL(thumbMIME, thumb)
		}
	}

	return att, nil
}

// =============================================================================
// ENCODING HELPERS
// =============================================================================

// BuildDataURL encodes data as data:<mime>;base64,<payload>.
func BuildDataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// SplitDataURL returns the MIME type and base64 payload of a data URL.
func SplitDataURL(dataURL string) (mimeType, payload string, err error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return "", "", fmt.Errorf("%w: missing data: prefix", ErrInvalidDataURL)
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", "", fmt.Errorf("%w: missing payload", ErrInvalidDataURL)
	}
	mimeType, ok = strings.CutSuffix(header, ";base64")
	if !ok {
		return "", "", fmt.Errorf("%w: not base64 encoded", ErrInvalidDataURL)
	}
	return mimeType, payload, nil
}

// DetectMIME picks a MIME type from the extension, sniffing content when the
// extension is unknown.
func DetectMIME(name string, data []byte) string {
	if t := mimeByExtension(name); t != "application/octet-stream" {
		return t
	}
	return http.DetectContentType(data)
}

// IsImage reports whether mimeType is an image type.
func IsImage(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}

func mimeByExtension(name string) string {
	t := mime.TypeByExtension(strings.ToLower(path.Ext(name)))
	if t == "" {
		return "application/octet-stream"
	}
	// Drop parameters such as "; charset=utf-8".
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return t
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func displayName(fp string) string {
	return norm.NFC.String(filepath.Base(fp))
}
