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

// Package pfstore provides a concurrency safe sqlite backed storage for
// decoded prefetch artifacts. Items are flat json style maps, one table per
// item type, with columns created on demand.
package pfstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/fatih/structs"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // Import sqlite3 driver
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stoewer/go-strcase"
)

// Item is a storeable element.
type Item = map[string]interface{}

const (
	// integer represents the SQL INTEGER type
	integer = "INTEGER"
	// numeric represents the SQL NUMERIC type
	numeric = "NUMERIC"
	// text represents the SQL TEXT type
	text = "TEXT"
)

const discriminator = "type"

// Store is a file based storage for prefetch artifacts.
type Store struct {
	afero.Fs
	NewDB       bool
	storeFolder string
	dbFile      string
	cursor      *sql.DB
	sqlMutex    sync.RWMutex
	tables      *tableMap
}

// New creates or opens a prefetch store.
func New(url string) (*Store, error) {
	if url == "" {
		return nil, errors.New("store url must not be empty")
	}

	store := &Store{}
	if url[len(url)-1:] == "/" {
		url = url[:len(url)-1]
	}

	store.Fs = afero.NewOsFs()
	store.storeFolder = url
	store.dbFile = filepath.Join(store.storeFolder, "prefetch.db")

	exists, err := afero.Exists(store, store.dbFile)
	if err != nil {
		return nil, err
	}
	store.NewDB = !exists

	err = store.MkdirAll(store.storeFolder, 0755)
	if err != nil {
		return nil, err
	}

	if store.NewDB {
		log.Printf("Creating store %s", store.storeFolder)
		_, err := store.Create(store.dbFile)
		if err != nil {
			return nil, err
		}
	}

	store.cursor, err = sql.Open("sqlite3", store.dbFile)
	if err != nil {
		return nil, err
	}

	store.tables = newTableMap()

	tables, err := store.getTables()
	if err != nil {
		return nil, err
	}
	for tableName, table := range tables {
		store.tables.store(tableName, table)
	}

	return store, nil
}

/* ################################
#   API
################################ */

// Insert adds a single item.
func (store *Store) Insert(item Item) (string, error) {
	uids, err := store.InsertBatch([]Item{item})
	if err != nil {
		return "", err
	}
	return uids[0], nil
}

// InsertBatch adds a set of items. All items must have the same fields.
func (store *Store) InsertBatch(items []Item) ([]string, error) { // nolint:gocyclo
	if len(items) == 0 {
		return nil, nil
	}
	firstItem := items[0]

	if _, ok := firstItem[discriminator]; !ok {
		return nil, errors.New("missing discriminator in item")
	}

	flatItem, err := flatten(firstItem)
	if err != nil {
		return nil, errors.Wrap(err, "could not flatten item")
	}
	ensureUID(flatItem)

	if err := store.ensureTable(flatItem); err != nil {
		return nil, errors.Wrap(err, "could not ensure table")
	}

	var columnNames []string
	for k := range flatItem {
		columnNames = append(columnNames, k)
	}

	var placeholderGrp []string
	var columnValues []interface{}
	var uids []string
	for _, item := range items {
		flatItem, err := flatten(item)
		if err != nil {
			return nil, errors.Wrap(err, "could not flatten item")
		}
		ensureUID(flatItem)

		for _, name := range columnNames {
			columnValues = append(columnValues, flatItem[name])
		}
		placeholderGrp = append(placeholderGrp, "("+strings.Repeat("?,", len(columnNames)-1)+"?)")

		uids = append(uids, flatItem["uid"].(string))
	}

	query := fmt.Sprintf(
		"INSERT INTO \"%s\"(%s) VALUES %s",
		firstItem[discriminator].(string),
		`"`+strings.Join(columnNames, `","`)+`"`,
		strings.Join(placeholderGrp, ","),
	) // #nosec
	stmt, err := store.cursor.Prepare(query)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("could not prepare statement %s", query))
	}

	store.sqlMutex.Lock()
	defer store.sqlMutex.Unlock()
	_, err = stmt.Exec(columnValues...)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprint("could not exec statement", query, columnValues))
	}

	return uids, nil
}

// InsertStruct converts a Go struct to a map and inserts it.
func (store *Store) InsertStruct(element interface{}) (string, error) {
	ids, err := store.InsertStructBatch([]interface{}{element})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// InsertStructBatch adds a list of structs to the store.
func (store *Store) InsertStructBatch(elements []interface{}) ([]string, error) {
	var items []Item
	for _, element := range elements {
		m := structs.Map(element)
		items = append(items, lower(m).(map[string]interface{}))
	}
	return store.InsertBatch(items)
}

// Get retrieves a single item.
func (store *Store) Get(id string) (item Item, err error) {
	parts := strings.Split(id, "--")
	discriminator := parts[0]

	stmt, err := store.cursor.Prepare(fmt.Sprintf("SELECT * FROM \"%s\" WHERE uid=?", discriminator)) // #nosec
	if err != nil {
		return nil, err
	}

	store.sqlMutex.RLock()
	rows, err := stmt.Query(id)
	store.sqlMutex.RUnlock()
	if err != nil {
		return nil, err
	}

	items, err := store.rowsToItems(rows)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		return items[0], nil
	}
	return nil, errors.New("item does not exist")
}

// Query executes a sql query.
func (store *Store) Query(query string) (items []Item, err error) {
	stmt, err := store.cursor.Prepare(query)
	if err != nil {
		return nil, err
	}

	store.sqlMutex.RLock()
	rows, err := stmt.Query()
	store.sqlMutex.RUnlock()
	if err != nil {
		return nil, err
	}

	return store.rowsToItems(rows)
}

// Select retrieves all items of a discriminated attribute.
func (store *Store) Select(itemType string, conditions []map[string]string) (items []Item, err error) {
	var ors []string
	for _, condition := range conditions {
		var ands []string
		for key, value := range condition {
			if key != discriminator {
				ands = append(ands, fmt.Sprintf("\"%s\" LIKE \"%s\"", key, value))
			}
		}
		if len(ands) > 0 {
			ors = append(ors, "("+strings.Join(ands, " AND ")+")")
		}
	}

	query := fmt.Sprintf("SELECT * FROM \"%s\"", itemType) // #nosec
	if len(ors) > 0 {
		query += fmt.Sprintf(" WHERE %s", strings.Join(ors, " OR ")) // #nosec
	}

	stmt, err := store.cursor.Prepare(query) // #nosec
	if err != nil {
		if strings.Contains(err.Error(), "no such table") {
			return nil, nil
		}
		return nil, err
	}

	store.sqlMutex.RLock()
	rows, err := stmt.Query()
	store.sqlMutex.RUnlock()
	if err != nil {
		return nil, err
	}

	return store.rowsToItems(rows)
}

// All returns every item.
func (store *Store) All() (items []Item, err error) {
	items = []Item{}

	stmt, err := store.cursor.Prepare("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE '%sqlite%';")
	if err != nil {
		return nil, err
	}

	store.sqlMutex.RLock()
	rows, err := stmt.Query()
	store.sqlMutex.RUnlock()
	if err != nil {
		return nil, err
	}

	for rows.Next() {
		s := ""
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		if strings.HasPrefix(s, "_") {
			continue
		}
		selectItems, err := store.Select(s, nil)
		if err != nil {
			return nil, err
		}
		items = append(items, selectItems...)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

// Close saves and closes the database.
func (store *Store) Close() error {
	return store.cursor.Close()
}

/* ################################
#   Intern
################################ */

func ensureUID(flatItem Item) {
	if uid, ok := flatItem["id"]; ok && uid != "" {
		flatItem["uid"] = fmt.Sprint(uid)
		delete(flatItem, "id")
	} else if uid, ok := flatItem["uid"]; ok && uid != "" {
		flatItem["uid"] = fmt.Sprint(uid)
	} else {
		flatItem["uid"] = flatItem[discriminator].(string) + "--" + uuid.New().String()
	}
}

// flatten snake cases all keys and encodes nested values as json text, so
// every remaining value fits a single sqlite column.
func flatten(item Item) (Item, error) {
	flat := make(Item, len(item))
	for k, v := range item {
		if v == nil || isEmptyValue(reflect.ValueOf(v)) {
			continue
		}
		key := strcase.SnakeCase(k)
		switch reflect.ValueOf(v).Kind() {
		case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
			b, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			flat[key] = string(b)
		default:
			flat[key] = v
		}
	}
	return flat, nil
}

func lower(f interface{}) interface{} {
	switch f := f.(type) {
	case []interface{}:
		for i := range f {
			if !isEmptyValue(reflect.ValueOf(f[i])) {
				f[i] = lower(f[i])
			}
		}
		return f
	case map[string]interface{}:
		lf := make(map[string]interface{}, len(f))
		for k, v := range f {
			if !isEmptyValue(reflect.ValueOf(v)) {
				lf[strcase.SnakeCase(k)] = lower(v)
			}
		}
		return lf
	default:
		return f
	}
}

func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Interface, reflect.Ptr:
		return v.IsNil()
	}
	return false
}

func (store *Store) rowsToItems(rows *sql.Rows) (items []Item, err error) {
	defer rows.Close()
	cols, _ := rows.Columns()

	items = []Item{}

	for rows.Next() {
		columns := make([]interface{}, len(cols))
		columnPointers := make([]interface{}, len(cols))
		for i := range columns {
			columnPointers[i] = &columns[i]
		}

		if err := rows.Scan(columnPointers...); err != nil {
			return nil, err
		}

		m := make(map[string]interface{})
		for i, colName := range cols {
			val := columnPointers[i].(*interface{})
			if (*val) == nil {
				continue
			}

			switch v := (*val).(type) {
			case int:
				m[colName] = float64(v)
			case int64:
				m[colName] = float64(v)
			case []uint8:
				m[colName] = string(v)
			default:
				m[colName] = *val
			}
		}

		// map uid => id
		if uid, ok := m["uid"]; ok {
			m["id"] = uid
			delete(m, "uid")
		}

		items = append(items, m)
	}
	return items, nil
}

type columnInfo struct {
	cid       int
	name      string
	ctype     string
	notnull   bool
	dfltValue interface{}
	pk        int
}

func (store *Store) getTables() (map[string]map[string]string, error) {
	store.sqlMutex.RLock()
	rows, err := store.cursor.Query("SELECT name FROM sqlite_master")
	store.sqlMutex.RUnlock()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := map[string]map[string]string{}

	for rows.Next() {
		name := ""
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}

		if strings.HasPrefix(name, "sqlite") || strings.HasPrefix(name, "_") {
			continue
		}
		tables[name] = map[string]string{}

		store.sqlMutex.RLock()
		columnRows, err := store.cursor.Query(fmt.Sprintf("PRAGMA table_info (\"%s\")", name))
		store.sqlMutex.RUnlock()
		if err != nil {
			return nil, err
		}

		for columnRows.Next() {
			var c columnInfo
			if err := columnRows.Scan(&c.cid, &c.name, &c.ctype, &c.notnull, &c.dfltValue, &c.pk); err != nil {
				columnRows.Close()
				return nil, err
			}
			tables[name][c.name] = c.ctype
		}
		if columnRows.Err() != nil {
			columnRows.Close()
			return nil, columnRows.Err()
		}
		columnRows.Close()
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return tables, nil
}

func (store *Store) ensureTable(flatItem Item) error {
	itemType := flatItem[discriminator].(string)

	store.sqlMutex.Lock()
	defer store.sqlMutex.Unlock()

	if table, ok := store.tables.load(itemType); !ok {
		if err := store.createTable(flatItem); err != nil {
			return errors.Wrap(err, "create table failed")
		}
	} else {
		var missingColumns []string
		for attribute := range flatItem {
			if _, ok := table[attribute]; !ok {
				missingColumns = append(missingColumns, attribute)
			}
		}

		if len(missingColumns) > 0 {
			if err := store.addMissingColumns(itemType, flatItem, missingColumns); err != nil {
				return errors.Wrap(err, fmt.Sprintf("adding missing column failed %v", missingColumns))
			}
		}
	}
	return nil
}

func (store *Store) createTable(flatItem Item) error {
	table := map[string]string{"uid": text, discriminator: text}
	store.tables.store(flatItem[discriminator].(string), table)

	columns := []string{"uid TEXT PRIMARY KEY", discriminator + " TEXT NOT NULL"}
	for columnName := range flatItem {
		if columnName != "uid" && columnName != discriminator {
			sqlDataType := getSQLDataType(flatItem[columnName])
			store.tables.innerstore(flatItem[discriminator].(string), columnName, sqlDataType)
			columns = append(columns, fmt.Sprintf("`%s` %s", columnName, sqlDataType))
		}
	}
	columnText := strings.Join(columns, ", ")

	_, err := store.cursor.Exec(fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` (%s)", flatItem[discriminator], columnText))
	return err
}

func getSQLDataType(value interface{}) string {
	switch value.(type) {
	case int, int16, int8, int32, int64, uint, uint16, uint8, uint32, uint64:
		return integer
	case float32, float64:
		return numeric
	default:
		return text
	}
}

func (store *Store) addMissingColumns(table string, columns map[string]interface{}, newColumns []string) error {
	sort.Strings(newColumns)
	for _, newColumn := range newColumns {
		sqlDataType := getSQLDataType(columns[newColumn])
		store.tables.innerstore(table, newColumn, sqlDataType)
		_, err := store.cursor.Exec(fmt.Sprintf("ALTER TABLE \"%s\" ADD COLUMN \"%s\" %s", table, newColumn, sqlDataType))
		if err != nil {
			return err
		}
	}
	return nil
}
