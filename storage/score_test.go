package storage

import (
	"testing"

	"github.com/poiesic/notekit/core"
	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{
			name:  "lowercases and trims punctuation",
			query: "Storage, Patterns!",
			want:  []string{"storage", "patterns"},
		},
		{
			name:  "drops stop words",
			query: "the storage of notes",
			want:  []string{"storage", "notes"},
		},
		{
			name:  "all stop words keeps raw terms",
			query: "the and of",
			want:  []string{"the", "and", "of"},
		},
		{
			name:  "empty query",
			query: "   ",
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ElementsMatch(t, tt.want, Tokenize(tt.query))
		})
	}
}

func TestScoreRecord(t *testing.T) {
	record := &core.Record{
		Title: "Flutter Notes",
		Body:  "storage patterns",
		Tags:  []string{"dart", "storage"},
	}

	tests := []struct {
		name  string
		terms []string
		want  float64
	}{
		{
			name:  "body and tag match",
			terms: []string{"storage"},
			want:  WeightTags + WeightBody, // tag "storage" + body "storage"
		},
		{
			name:  "title match",
			terms: []string{"flutter"},
			want:  WeightTitle,
		},
		{
			name:  "two terms accumulate",
			terms: []string{"flutter", "storage"},
			want:  WeightTitle + WeightTags + WeightBody,
		},
		{
			name:  "term matching several tags counts once",
			terms: []string{"a"}, // substring of "dart" and of "storage" and of "patterns"
			want:  WeightTags + WeightBody,
		},
		{
			name:  "no match",
			terms: []string{"zebra"},
			want:  0,
		},
		{
			name:  "no terms",
			terms: nil,
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScoreRecord(record, tt.terms))
		})
	}
}

func TestFilter_Matches(t *testing.T) {
	fav := true
	rec := &core.Record{
		Id:       core.NewID(),
		Title:    "t",
		Category: "work",
		Tags:     []string{"go", "notes"},
		Favorite: true,
	}

	assert.True(t, Filter{}.Matches(rec))
	assert.True(t, Filter{Category: "work"}.Matches(rec))
	assert.False(t, Filter{Category: "home"}.Matches(rec))
	assert.True(t, Filter{Tags: []string{"go"}}.Matches(rec))
	assert.False(t, Filter{Tags: []string{"go", "missing"}}.Matches(rec))
	assert.True(t, Filter{Favorite: &fav}.Matches(rec))

	tombstone := &core.Record{Id: core.NewID(), Title: "t", Deleted: true}
	assert.False(t, Filter{}.Matches(tombstone))
	assert.True(t, Filter{IncludeDeleted: true}.Matches(tombstone))
}
