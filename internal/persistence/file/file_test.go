package file_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/judgehost/judgehost/internal/persistence"
	"github.com/judgehost/judgehost/internal/persistence/file"
)

func TestPutPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := file.Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Put(context.Background(), persistence.DomainFacts, "1", persistence.Document{"id": "1", "text": "hello"}))
	require.NoError(t, s.Close(context.Background()))

	reopened, err := file.Open(dir)
	require.NoError(t, err)
	got, err := reopened.Get(context.Background(), persistence.DomainFacts, "1")
	require.NoError(t, err)
	assert.Equal(t, "hello", got["text"])
}

func TestOpenOnEmptyDirStartsWithNoDocuments(t *testing.T) {
	dir := t.TempDir()
	s, err := file.Open(dir)
	require.NoError(t, err)

	docs, err := s.List(context.Background(), persistence.DomainFacts)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestDeletePersists(t *testing.T) {
	dir := t.TempDir()
	s, err := file.Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Put(context.Background(), persistence.DomainFacts, "1", persistence.Document{"id": "1"}))
	require.NoError(t, s.Delete(context.Background(), persistence.DomainFacts, "1"))

	reopened, err := file.Open(dir)
	require.NoError(t, err)
	docs, err := reopened.List(context.Background(), persistence.DomainFacts)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestListScopesByDomain(t *testing.T) {
	dir := t.TempDir()
	s, err := file.Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Put(context.Background(), persistence.DomainFacts, "1", persistence.Document{"id": "1"}))
	require.NoError(t, s.Put(context.Background(), persistence.DomainJudgments, "2", persistence.Document{"id": "2"}))

	docs, err := s.List(context.Background(), persistence.DomainFacts)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "1", docs[0]["id"])
}
