package sceneasset

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/yungbote/neurobridge-viewer/internal/platform/logger"
)

// Resource is one archive entry held in memory behind a blob handle.
type Resource struct {
	Name     string `json:"name"`
	BaseName string `json:"baseName"`
	MIMEType string `json:"mimeType"`
	Size     int64  `json:"size"`
	Handle   Handle `json:"handle"`
	URL      string `json:"url"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// materializer turns entry bytes into registered blobs for one run and
// records each under both resolver keys.
type materializer struct {
	log       *logger.Logger
	reg       *BlobRegistry
	table     *ResolverTable
	resources []*Resource
	byName    map[string]*Resource
}

func newMaterializer(log *logger.Logger, reg *BlobRegistry) *materializer {
	return &materializer{
		log:    log,
		reg:    reg,
		table:  NewResolverTable(),
		byName: map[string]*Resource{},
	}
}

func (m *materializer) add(name string, data []byte) *Resource {
	if r, ok := m.byName[name]; ok {
		return r
	}
	mimeType := MIMETypeFor(name)
	h := m.reg.Create(data, mimeType)
	res := &Resource{
		Name:     name,
		BaseName: baseName(name),
		MIMEType: mimeType,
		Size:     int64(len(data)),
		Handle:   h,
		URL:      m.reg.URL(h),
	}
	if isImageMIME(mimeType) {
		m.probeImage(res, data)
	}
	m.resources = append(m.resources, res)
	m.byName[name] = res
	m.table.Add(name, res.URL)
	return res
}

func (m *materializer) probeImage(res *Resource, data []byte) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		m.log.Warn("Texture header unreadable", "entry", res.Name, "mime", res.MIMEType, "error", err)
		return
	}
	res.Width, res.Height = cfg.Width, cfg.Height
}

// revokeAll releases everything created so far. Used when a run is
// abandoned before its Result exists.
func (m *materializer) revokeAll() {
	for _, r := range m.resources {
		m.reg.Revoke(r.Handle)
	}
	m.resources = nil
	m.byName = map[string]*Resource{}
}
