// artifacts.go
//
// A research dataset access and desensitization service
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of datashare.
// datashare is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// datashare is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with datashare.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

// Package storage persists desensitized dataset artifacts on an afero
// filesystem: the local disk, memory, or an S3 bucket.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscredentials "github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/localnerve/datashare/internal/config"
	s3fs "github.com/looplj/afero-s3"
	"github.com/spf13/afero"
)

var (
	ErrExists   = errors.New("artifact already exists")
	ErrNotFound = errors.New("artifact not found")
)

// Store reads and writes artifacts by key.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader) error
	Get(ctx context.Context, key string) ([]byte, error)
	Remove(ctx context.Context, key string) error
}

// ArtifactKey names the artifact of a dataset deterministically.
func ArtifactKey(projectID, datasetID, ext string) string {
	return fmt.Sprintf("%s-%s.%s", projectID, datasetID, ext)
}

// FsStore is a Store over an afero filesystem.
type FsStore struct {
	fs     afero.Fs
	atomic bool
}

// NewFsStore wraps fs. When atomic is set, Put writes a temporary file and
// renames it into place; object stores without rename write directly.
func NewFsStore(fs afero.Fs, atomic bool) *FsStore {
	return &FsStore{fs: fs, atomic: atomic}
}

// New builds the store selected by ARTIFACT_BACKEND.
func New(ctx context.Context, cfg *config.Config) (*FsStore, error) {
	switch cfg.ArtifactBackend {
	case config.BackendMemory:
		return NewFsStore(afero.NewMemMapFs(), true), nil

	case config.BackendFS:
		if err := os.MkdirAll(cfg.DatasetRoot, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create dataset root: %w", err)
		}
		return NewFsStore(afero.NewBasePathFs(afero.NewOsFs(), cfg.DatasetRoot), true), nil

	case config.BackendS3:
		fs, err := newS3Fs(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewFsStore(fs, false), nil
	}
	return nil, fmt.Errorf("unsupported artifact backend: %s", cfg.ArtifactBackend)
}

// newS3Fs creates an S3 filesystem using the afero-s3 adapter.
func newS3Fs(ctx context.Context, cfg *config.Config) (afero.Fs, error) {
	loadOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.S3AccessKey != "" {
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(
			awscredentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return s3fs.NewFsFromClient(cfg.S3Bucket, client), nil
}

// Put writes a new artifact. An existing key is never overwritten.
func (s *FsStore) Put(ctx context.Context, key string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if exists, err := afero.Exists(s.fs, key); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("%w: %s", ErrExists, key)
	}

	if dir := path.Dir(key); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	if !s.atomic {
		return afero.WriteReader(s.fs, key, r)
	}

	tmp := fmt.Sprintf("%s.%s.tmp", key, uuid.NewString())
	if err := afero.WriteReader(s.fs, tmp, r); err != nil {
		s.fs.Remove(tmp)
		return err
	}
	if err := ctx.Err(); err != nil {
		s.fs.Remove(tmp)
		return err
	}
	if err := s.fs.Rename(tmp, key); err != nil {
		s.fs.Remove(tmp)
		return err
	}
	return nil
}

// Get reads a whole artifact.
func (s *FsStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, key)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return data, err
}

// Remove deletes an artifact. Removing a missing key is not an error.
func (s *FsStore) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.fs.Remove(key)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Probe writes, reads back and removes a small object.
func Probe(ctx context.Context, s Store) error {
	key := fmt.Sprintf("healthcheck-%s-%d.probe", uuid.NewString(), time.Now().UnixNano())
	payload := []byte("ok")
	if err := s.Put(ctx, key, bytes.NewReader(payload)); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	defer s.Remove(ctx, key)

	got, err := s.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	if !bytes.Equal(got, payload) {
		return errors.New("read back mismatch")
	}
	return nil
}
