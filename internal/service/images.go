package service

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/afero"

	"github.com/sells-group/afm-api/internal/naming"
	"github.com/sells-group/afm-api/internal/resolve"
	"github.com/sells-group/afm-api/internal/store"
)

// Image resolves the rendered image of a point.
func (s *Service) Image(toolName, filename string, sel resolve.SiteSelector) (resolve.Match, error) {
	tool, err := s.Tool(toolName)
	if err != nil {
		return resolve.Match{}, err
	}
	if err := checkFilename(filename); err != nil {
		return resolve.Match{}, err
	}
	return s.resolver.Point(tool, filename, sel, resolve.KindImage)
}

// ImageInfo describes a listed image file.
type ImageInfo struct {
	Name     string  `json:"name"`
	Size     int64   `json:"size"`
	Modified float64 `json:"modified"`
}

// ImageList is the content of one typed image directory.
type ImageList struct {
	Type      string      `json:"type"`
	Directory string      `json:"directory"`
	Images    []ImageInfo `json:"images"`
	Count     int         `json:"count"`
}

// imageDir returns the directory of an image type.
func (s *Service) imageDir(tool store.Tool, imageType string) (string, error) {
	dir, ok := store.ImageDirs[imageType]
	if !ok {
		return "", eris.Wrapf(ErrInvalidArgument, "image type %q must be one of profile, tiff, align, tip", imageType)
	}
	return tool.Dir(dir), nil
}

// Images lists the image files of a typed directory, optionally only those
// whose name contains filename. A missing directory lists nothing.
func (s *Service) Images(toolName, imageType, filename string) (*ImageList, error) {
	tool, err := s.Tool(toolName)
	if err != nil {
		return nil, err
	}
	dir, err := s.imageDir(tool, imageType)
	if err != nil {
		return nil, err
	}

	files, err := s.store.ListFiles(dir, store.ImageExts...)
	if err != nil {
		return nil, err
	}

	var patterns []string
	if filename = strings.TrimSpace(filename); filename != "" {
		patterns = []string{filename, naming.StripExt(filename)}
	}

	list := &ImageList{Type: imageType, Directory: dir, Images: []ImageInfo{}}
	for _, f := range files {
		if len(patterns) > 0 && !containsAny(f.Name(), patterns) {
			continue
		}
		list.Images = append(list.Images, ImageInfo{
			Name:     f.Name(),
			Size:     f.Size(),
			Modified: float64(f.ModTime().UnixNano()) / 1e9,
		})
	}
	list.Count = len(list.Images)
	return list, nil
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// TypedImage returns the path of a named file in a typed image directory.
// The name must be a bare file name.
func (s *Service) TypedImage(toolName, imageType, name string) (string, error) {
	tool, err := s.Tool(toolName)
	if err != nil {
		return "", err
	}
	dir, err := s.imageDir(tool, imageType)
	if err != nil {
		return "", err
	}
	if err := resolve.CheckName(name); err != nil {
		return "", eris.Wrapf(ErrInvalidArgument, "image name: %v", err)
	}

	path := filepath.Join(dir, name)
	ok, err := s.store.Exists(path)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", eris.Wrapf(resolve.ErrNotFound, "no %s image %s in tool %s", imageType, name, tool.Name)
	}
	return path, nil
}

// OpenFile opens a resolved file for serving.
func (s *Service) OpenFile(path string) (afero.File, os.FileInfo, error) {
	f, err := s.store.Open(path)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, eris.Wrapf(err, "service: stat %s", path)
	}
	return f, info, nil
}
