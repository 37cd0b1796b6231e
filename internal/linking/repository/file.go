package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"linkgate/internal/linking/domain"
)

// FormatVersion is written into the metadata block of every saved file.
const FormatVersion = "1"

// BackupSuffix is appended to the primary path for the pre-save backup copy.
const BackupSuffix = ".backup"

const filePerm = 0o600

type fileRecord struct {
	ExternalID  int64  `json:"externalId" yaml:"externalId"`
	LinkedAt    int64  `json:"linkedAt" yaml:"linkedAt"`
	DisplayName string `json:"displayName,omitempty" yaml:"displayName,omitempty"`
}

type fileMetadata struct {
	SavedAt    int64  `json:"savedAt" yaml:"savedAt"`
	TotalLinks int    `json:"totalLinks" yaml:"totalLinks"`
	Version    string `json:"version" yaml:"version"`
}

type fileDocument struct {
	Links    map[string]fileRecord `json:"links" yaml:"links"`
	Metadata fileMetadata          `json:"metadata" yaml:"metadata"`
}

// recordDecoder decodes one record lazily so a bad record does not fail the document.
type recordDecoder func(*fileRecord) error

type codec interface {
	marshal(doc fileDocument) ([]byte, error)
	unmarshal(data []byte) (map[string]recordDecoder, error)
}

type jsonCodec struct{}

func (jsonCodec) marshal(doc fileDocument) ([]byte, error) {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func (jsonCodec) unmarshal(data []byte) (map[string]recordDecoder, error) {
	var doc struct {
		Links map[string]json.RawMessage `json:"links"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	out := make(map[string]recordDecoder, len(doc.Links))
	for k, raw := range doc.Links {
		out[k] = func(r *fileRecord) error { return json.Unmarshal(raw, r) }
	}
	return out, nil
}

type yamlCodec struct{}

func (yamlCodec) marshal(doc fileDocument) ([]byte, error) {
	return yaml.Marshal(doc)
}

func (yamlCodec) unmarshal(data []byte) (map[string]recordDecoder, error) {
	var doc struct {
		Links map[string]yaml.Node `yaml:"links"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	out := make(map[string]recordDecoder, len(doc.Links))
	for k, node := range doc.Links {
		out[k] = func(r *fileRecord) error { return node.Decode(r) }
	}
	return out, nil
}

// FileRepository stores links in a single JSON or YAML document, chosen by file extension.
type FileRepository struct {
	path  string
	codec codec
	log   zerolog.Logger
	nowF  func() time.Time
}

// NewFileRepository returns a repository backed by path. Paths ending in .yaml or .yml use YAML;
// everything else uses JSON.
func NewFileRepository(path string, log zerolog.Logger) *FileRepository {
	var c codec = jsonCodec{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		c = yamlCodec{}
	}
	return &FileRepository{
		path:  path,
		codec: c,
		log:   log.With().Str("component", "file_repository").Str("path", path).Logger(),
		nowF:  func() time.Time { return time.Now().UTC() },
	}
}

// Path returns the primary file path.
func (r *FileRepository) Path() string {
	return r.path
}

// BackupPath returns the path of the backup copy.
func (r *FileRepository) BackupPath() string {
	return r.path + BackupSuffix
}

// Save copies the current file to the backup path, then atomically replaces the primary.
func (r *FileRepository) Save(ctx context.Context, snap domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc := fileDocument{
		Links: make(map[string]fileRecord, len(snap.Links)),
		Metadata: fileMetadata{
			SavedAt:    r.nowF().UnixMilli(),
			TotalLinks: len(snap.Links),
			Version:    FormatVersion,
		},
	}
	for _, l := range snap.Links {
		doc.Links[l.AccountID] = fileRecord{
			ExternalID:  l.ExternalID,
			LinkedAt:    l.LinkedAt.UnixMilli(),
			DisplayName: l.DisplayName,
		}
	}
	data, err := r.codec.marshal(doc)
	if err != nil {
		return fmt.Errorf("encode links for %s: %w", r.path, err)
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", r.path, err)
	}
	if err := r.backup(); err != nil {
		return err
	}
	return writeFileAtomic(r.path, data, filePerm)
}

func (r *FileRepository) backup() error {
	cur, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s for backup: %w", r.path, err)
	}
	if err := writeFileAtomic(r.BackupPath(), cur, filePerm); err != nil {
		return fmt.Errorf("backup %s: %w", r.path, err)
	}
	return nil
}

// Load reads the primary file, falling back to the backup when the primary cannot be decoded.
// A missing primary yields no links and no error.
func (r *FileRepository) Load(ctx context.Context) ([]domain.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	links, err := r.loadFile(r.path)
	if err == nil {
		return links, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	r.log.Warn().Err(err).Msg("primary links file unreadable, trying backup")
	links, berr := r.loadFile(r.BackupPath())
	if berr != nil {
		return nil, fmt.Errorf("load %s: %w (backup: %v)", r.path, err, berr)
	}
	return links, nil
}

func (r *FileRepository) loadFile(path string) ([]domain.Link, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	records, err := r.codec.unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	loadedAt := r.nowF()
	links := make([]domain.Link, 0, len(records))
	for account, decode := range records {
		var rec fileRecord
		if err := decode(&rec); err != nil {
			r.log.Warn().Err(err).Str("account_id", account).Msg("skipping malformed link record")
			continue
		}
		if account == "" || rec.ExternalID <= 0 {
			r.log.Warn().Str("account_id", account).Int64("external_id", rec.ExternalID).Msg("skipping invalid link record")
			continue
		}
		linkedAt := loadedAt
		if rec.LinkedAt > 0 {
			linkedAt = time.UnixMilli(rec.LinkedAt).UTC()
		}
		links = append(links, domain.Link{
			AccountID:   account,
			ExternalID:  rec.ExternalID,
			DisplayName: rec.DisplayName,
			LinkedAt:    linkedAt,
		})
	}
	return links, nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file %s: %w", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("chmod temp file %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file to %s: %w", path, err)
	}
	return nil
}
