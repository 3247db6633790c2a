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
	"sync"

	"github.com/qri-io/jsonschema"
)

// typeMap tracks the fields seen per element type, to build the per type
// views on close.
type typeMap struct {
	sync.RWMutex
	changed bool
	types   map[string]map[string]bool
}

func newTypeMap() *typeMap {
	return &typeMap{types: map[string]map[string]bool{}}
}

func (tm *typeMap) all() map[string]map[string]bool {
	tm.Lock()
	defer tm.Unlock()
	return tm.types
}

func (tm *typeMap) add(name, field string) {
	tm.Lock()
	defer tm.Unlock()
	if _, ok := tm.types[name]; !ok {
		tm.types[name] = map[string]bool{}
	}
	if _, ok := tm.types[name][field]; !ok {
		tm.types[name][field] = true
		tm.changed = true
	}
}

func (tm *typeMap) addAll(name string, fields map[string]interface{}) {
	tm.Lock()
	defer tm.Unlock()
	if _, ok := tm.types[name]; !ok {
		tm.types[name] = map[string]bool{}
	}
	for field := range fields {
		if _, ok := tm.types[name][field]; !ok {
			tm.types[name][field] = true
			tm.changed = true
		}
	}
}

type schemaMap struct {
	sync.RWMutex
	schemas map[string]*jsonschema.RootSchema
}

func newSchemaMap() *schemaMap {
	return &schemaMap{schemas: map[string]*jsonschema.RootSchema{}}
}

func (sm *schemaMap) load(id string) (*jsonschema.RootSchema, bool) {
	sm.RLock()
	defer sm.RUnlock()
	schema, ok := sm.schemas[id]
	return schema, ok
}

func (sm *schemaMap) store(id string, schema *jsonschema.RootSchema) {
	sm.Lock()
	defer sm.Unlock()
	sm.schemas[id] = schema
}

func (sm *schemaMap) values() []*jsonschema.RootSchema {
	sm.RLock()
	defer sm.RUnlock()
	var values []*jsonschema.RootSchema
	for _, schema := range sm.schemas {
		values = append(values, schema)
	}
	return values
}
