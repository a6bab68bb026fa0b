// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package artifact

import (
	"errors"
	"time"
)

// ErrNotFound is returned by delete operations for an unknown or already
// inactive artifact. Loads report absence through their found result instead.
var ErrNotFound = errors.New("artifact not found")

// Category selects which kind of entity an embedding describes.
type Category string

const (
	CategoryRoom    Category = "room"
	CategoryUser    Category = "user"
	CategoryBooking Category = "booking"
)

// Categories lists every embedding category.
var Categories = []Category{CategoryRoom, CategoryUser, CategoryBooking}

type categorySpec struct {
	table string
	dir   string
}

var categorySpecs = map[Category]categorySpec{
	CategoryRoom:    {table: "room_embeddings", dir: "rooms"},
	CategoryUser:    {table: "user_embeddings", dir: "users"},
	CategoryBooking: {table: "booking_embeddings", dir: "bookings"},
}

// CategoryDir returns the directory under the embeddings root that holds
// vectors of category c, or "" if c is unknown.
func CategoryDir(c Category) string {
	return categorySpecs[c].dir
}

// Status is the soft-delete flag on artifact rows.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// ModelFormat names the on-disk encoding of model files.
const ModelFormat = "gob+gzip/v1"

// EmbeddingRequest is one embedding save.
type EmbeddingRequest struct {
	Category Category  `validate:"required,oneof=room user booking"`
	EntityID string    `validate:"identifier"`
	Vector   []float32 `validate:"required,min=1"`
	Version  string    `validate:"omitempty,max=64"`
}

// Embedding is a stored vector plus its metadata.
type Embedding struct {
	Category    Category
	EntityID    string
	Vector      []float32
	Dimensions  int
	ContentHash string
	Version     string
	FilePath    string
	SizeBytes   int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ModelRequest is one model save. Model must be encodable by the codec;
// custom struct types need codec.Register first.
type ModelRequest struct {
	Type            string                 `validate:"identifier"`
	Version         string                 `validate:"identifier"`
	Model           interface{}            `validate:"required"`
	Hyperparameters map[string]interface{} `validate:"-"`
	Metrics         map[string]float64     `validate:"-"`
}

// ModelInfo is the metadata row of a saved model.
type ModelInfo struct {
	ID              string                 `json:"model_id"`
	Type            string                 `json:"model_type"`
	Version         string                 `json:"version"`
	FilePath        string                 `json:"file_path"`
	SizeBytes       int64                  `json:"size_bytes"`
	Checksum        string                 `json:"checksum"`
	Format          string                 `json:"format"`
	Hyperparameters map[string]interface{} `json:"hyperparameters,omitempty"`
	Metrics         map[string]float64     `json:"metrics,omitempty"`
	Status          Status                 `json:"status"`
	IsLatest        bool                   `json:"is_latest"`
	CreatedAt       time.Time              `json:"created_at"`
}

// Model is a loaded model and its metadata.
type Model struct {
	Info  ModelInfo
	Value interface{}
}
