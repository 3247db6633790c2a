// Copyright (c) 2020 Siemens AG
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
//
// Author(s): Jonas Plum

package resultstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func memStore(t *testing.T) *Store {
	store, err := New(":memory:")
	require.NoError(t, err)
	return store
}

func TestInsertAndGet(t *testing.T) {
	store := memStore(t)
	defer store.Close()

	id, err := store.Insert(JSONElement(`{"type": "keyword-hit", "keyword": "mimikatz", "image": "disk1"}`))
	require.NoError(t, err)
	assert.Contains(t, id, "keyword-hit--")

	element, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "mimikatz", gjson.GetBytes(element, "keyword").String())
}

func TestInsertRequiresType(t *testing.T) {
	store := memStore(t)
	defer store.Close()

	_, err := store.Insert(JSONElement(`{"keyword": "mimikatz"}`))
	assert.Error(t, err)
}

func TestSelect(t *testing.T) {
	store := memStore(t)
	defer store.Close()

	_, err := store.Insert(JSONElement(`{"type": "keyword-hit", "image": "disk1"}`))
	require.NoError(t, err)
	_, err = store.Insert(JSONElement(`{"type": "keyword-hit", "image": "disk2"}`))
	require.NoError(t, err)
	_, err = store.Insert(JSONElement(`{"type": "test", "image": "disk1"}`))
	require.NoError(t, err)

	hits, err := store.Select([]map[string]string{{"type": "keyword-hit"}})
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	disk1, err := store.Select([]map[string]string{{"type": "keyword-hit", "image": "disk1"}})
	require.NoError(t, err)
	assert.Len(t, disk1, 1)

	all, err := store.All()
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSearch(t *testing.T) {
	store := memStore(t)
	defer store.Close()

	_, err := store.Insert(JSONElement(`{"type": "keyword-hit", "keyword": "lsass"}`))
	require.NoError(t, err)
	_, err = store.Insert(JSONElement(`{"type": "keyword-hit", "keyword": "other"}`))
	require.NoError(t, err)

	elements, err := store.Search("lsass")
	require.NoError(t, err)
	assert.Len(t, elements, 1)
}

func TestInsertStruct(t *testing.T) {
	store := memStore(t)
	defer store.Close()

	hit := NewKeywordHit()
	hit.Keyword = "psexec"
	hit.Image = "disk1"
	hit.Artifact = "artefacts/evtx/System.evtx"

	id, err := store.InsertStruct(hit)
	require.NoError(t, err)
	assert.Equal(t, hit.ID, id)

	element, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "psexec", gjson.GetBytes(element, "keyword").String())
	assert.Equal(t, "keyword-hit", gjson.GetBytes(element, "type").String())
}

func TestOpenOrCreate(t *testing.T) {
	url := filepath.Join(t.TempDir(), "results.db")

	store, err := OpenOrCreate(url)
	require.NoError(t, err)
	_, err = store.Insert(JSONElement(`{"type": "keyword-hit", "keyword": "a"}`))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = OpenOrCreate(url)
	require.NoError(t, err)
	defer store.Close()

	all, err := store.All()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestOpenRejectsForeignFile(t *testing.T) {
	url := filepath.Join(t.TempDir(), "something.db")
	require.NoError(t, os.WriteFile(url, []byte("not a database"), 0644))

	_, err := Open(url)
	assert.Error(t, err)
}
