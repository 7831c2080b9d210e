package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path"
	"strings"

	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/lhlamlehoang/BigBikeBlitz/internal/model"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/storage"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/util"
	"github.com/lhlamlehoang/BigBikeBlitz/pkg/apierror"
)

// PublicUploadPrefix is the URL prefix uploaded images are served under.
const PublicUploadPrefix = "/uploads/"

const thumbnailDir = "thumbs"

var errUndecodable = errors.New("undecodable image")

// ImageService stores bike pictures and their JPEG thumbnails.
type ImageService struct {
	store         *storage.Storage
	allowed       []string
	thumbnailSize int
	logger        *slog.Logger
}

func NewImageService(store *storage.Storage, allowedMIMETypes []string, thumbnailSize int, logger *slog.Logger) *ImageService {
	if thumbnailSize <= 0 {
		thumbnailSize = 320
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageService{store: store, allowed: allowedMIMETypes, thumbnailSize: thumbnailSize, logger: logger}
}

func (s *ImageService) Upload(_ context.Context, filename string, reader io.Reader) (model.UploadResult, error) {
	detected, content, err := util.SniffMIME(reader)
	if err != nil {
		return model.UploadResult{}, err
	}

	ext := util.ExtensionForMIME(detected)
	if ext == "" || !util.MIMEAllowed(detected, s.allowed) {
		return model.UploadResult{}, apierror.New("UNSUPPORTED_TYPE", "file type is not allowed", detected, http.StatusUnsupportedMediaType)
	}

	name := util.Slug(filename) + "-" + uuid.NewString()[:8] + ext
	written, err := s.store.Write(name, content)
	if err != nil {
		return model.UploadResult{}, err
	}

	result := model.UploadResult{
		Path:     PublicUploadPrefix + name,
		Size:     written,
		MimeType: detected,
	}

	if util.IsThumbnailMIME(detected) {
		thumb, err := s.writeThumbnail(name)
		switch {
		case errors.Is(err, errUndecodable):
			if rmErr := s.store.Remove(name); rmErr != nil {
				s.logger.Warn("remove undecodable upload", "file", name, "error", rmErr)
			}
			return model.UploadResult{}, apierror.New("UNSUPPORTED_TYPE", "image could not be decoded", detected, http.StatusUnsupportedMediaType)
		case err != nil:
			s.logger.Warn("thumbnail generation failed", "file", name, "error", err)
		default:
			result.Thumbnail = PublicUploadPrefix + thumb
		}
	}

	return result, nil
}

// Open returns a stored upload by its public path or its name relative to the
// upload root.
func (s *ImageService) Open(publicPath string) (*os.File, fs.FileInfo, error) {
	rel := strings.TrimPrefix(publicPath, strings.TrimSuffix(PublicUploadPrefix, "/"))
	file, info, err := s.store.Open(rel)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, apierror.NotFound("File not found", publicPath)
	}
	return file, info, err
}

func (s *ImageService) writeThumbnail(name string) (string, error) {
	file, _, err := s.store.Open(name)
	if err != nil {
		return "", err
	}
	defer file.Close()

	src, _, err := image.Decode(file)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errUndecodable, err)
	}

	bounds := src.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return "", fmt.Errorf("%w: empty bounds", errUndecodable)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaleToFit(src, s.thumbnailSize), &jpeg.Options{Quality: 95}); err != nil {
		return "", err
	}

	thumb := path.Join(thumbnailDir, strings.TrimSuffix(name, path.Ext(name))+".jpg")
	if _, err := s.store.Write(thumb, &buf); err != nil {
		return "", err
	}
	return thumb, nil
}

// scaleToFit shrinks src so its longer side is at most size pixels. Smaller
// images are copied unscaled.
func scaleToFit(src image.Image, size int) image.Image {
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	scale := math.Min(1, float64(size)/float64(max(width, height)))
	targetWidth := max(1, int(math.Round(float64(width)*scale)))
	targetHeight := max(1, int(math.Round(float64(height)*scale)))

	dst := image.NewRGBA(image.Rect(0, 0, targetWidth, targetHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	return dst
}
