// Package hostid resolves the host identifier stamped on every log item.
package hostid

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/witnz/rowdiff/internal/storage"
)

const (
	SourceHostname = "hostname"
	SourceUUID     = "uuid"

	customPrefix = "custom:"
	uuidKey      = "host_uuid"
)

// Metadata is the slice of storage used to remember a generated UUID.
type Metadata interface {
	GetMetadata(key string) (string, error)
	SetMetadata(key, value string) error
}

// Resolver returns the identifier for a setting. hostname is the default.
type Resolver struct {
	Hostname func() (string, error)
	NewUUID  func() string
}

func NewResolver() *Resolver {
	return &Resolver{
		Hostname: os.Hostname,
		NewUUID:  uuid.NewString,
	}
}

// Resolve accepts "hostname", "uuid" or "custom:<id>". A uuid is generated
// once and read back from metadata afterwards.
func (r *Resolver) Resolve(setting string, meta Metadata) (string, error) {
	switch {
	case setting == "" || setting == SourceHostname:
		name, err := r.Hostname()
		if err != nil {
			return "", fmt.Errorf("failed to get hostname: %w", err)
		}
		return name, nil

	case setting == SourceUUID:
		return r.resolveUUID(meta)

	case strings.HasPrefix(setting, customPrefix):
		id := strings.TrimPrefix(setting, customPrefix)
		if id == "" {
			return "", fmt.Errorf("custom host identifier is empty")
		}
		return id, nil

	default:
		return "", fmt.Errorf("unknown host identifier source: %s", setting)
	}
}

func (r *Resolver) resolveUUID(meta Metadata) (string, error) {
	if meta == nil {
		return "", fmt.Errorf("uuid host identifier needs metadata storage")
	}

	id, err := meta.GetMetadata(uuidKey)
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("failed to read host uuid: %w", err)
	}

	id = r.NewUUID()
	if err := meta.SetMetadata(uuidKey, id); err != nil {
		return "", fmt.Errorf("failed to persist host uuid: %w", err)
	}
	return id, nil
}

// Resolve uses the system hostname and a random UUID generator.
func Resolve(setting string, meta Metadata) (string, error) {
	return NewResolver().Resolve(setting, meta)
}
