package db

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/rqlite/gorqlite"
)

func New(conn *gorqlite.Connection) *Queries {
	return &Queries{
		conn: conn,
	}
}

type Queries struct {
	conn *gorqlite.Connection
}

// PassageID identifies a passage within a named index.
type PassageID struct {
	Index  string
	Source string
}

func (p PassageID) String() string {
	return fmt.Sprintf("%s:%s", p.Index, p.Source)
}

type Passage struct {
	PassageID
	Content   string
	Metadata  map[string]string
	CreatedAt time.Time
}

type PassagePutArgs struct {
	Passage   Passage
	Embedding []float32
}

func (q *Queries) passageUpsertRowID(ctx context.Context, p Passage, metadataJSON string) (rowID int64, err error) {
	stmt := gorqlite.ParameterizedStatement{
		Query: `insert into passage (id, index_name, source, content, metadata, created_at)
values (?, ?, ?, ?, ?, ?)
on conflict(id) do update
set
    content = excluded.content,
    metadata = excluded.metadata
`,
		Arguments: []any{p.PassageID.String(), p.Index, p.Source, p.Content, metadataJSON, p.CreatedAt},
	}
	if _, err = q.conn.WriteOneParameterizedContext(ctx, stmt); err != nil {
		return 0, err
	}

	// Read the row ID.
	stmt = gorqlite.ParameterizedStatement{
		Query:     `select rowid from passage where id = ?`,
		Arguments: []any{p.PassageID.String()},
	}
	result, err := q.conn.QueryOneParameterizedContext(ctx, stmt)
	if err != nil {
		return 0, err
	}
	if !result.Next() {
		return 0, fmt.Errorf("expected a row ID")
	}
	err = result.Scan(&rowID)
	return rowID, err
}

func (q *Queries) PassagePut(ctx context.Context, args PassagePutArgs) (id int64, err error) {
	metadataJSON, err := json.Marshal(args.Passage.Metadata)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	id, err = q.passageUpsertRowID(ctx, args.Passage, string(metadataJSON))
	if err != nil {
		return id, fmt.Errorf("failed to upsert passage row id: %w", err)
	}
	if id == 0 {
		return id, fmt.Errorf("expected a non-zero row ID")
	}
	embeddingJSON, err := json.Marshal(args.Embedding)
	if err != nil {
		return id, fmt.Errorf("failed to marshal embedding: %w", err)
	}
	statements := []gorqlite.ParameterizedStatement{
		{
			Query:     `delete from passage_vec where passage_rowid = ?`,
			Arguments: []any{id},
		},
		{
			Query:     `insert into passage_vec (passage_rowid, index_name, embedding) values (?, ?, ?)`,
			Arguments: []any{id, args.Passage.Index, string(embeddingJSON)},
		},
	}
	if _, err = q.conn.WriteParameterizedContext(ctx, statements); err != nil {
		return id, err
	}
	return id, nil
}

func (q *Queries) PassageDelete(ctx context.Context, args PassageID) (err error) {
	statements := []gorqlite.ParameterizedStatement{
		{
			Query:     `delete from passage_vec where passage_rowid in (select rowid from passage where index_name = ? and source = ?)`,
			Arguments: []any{args.Index, args.Source},
		},
		{
			Query:     `delete from passage where index_name = ? and source = ?`,
			Arguments: []any{args.Index, args.Source},
		},
	}
	if _, err = q.conn.WriteParameterizedContext(ctx, statements); err != nil {
		return err
	}
	return nil
}

func (q *Queries) PassageGet(ctx context.Context, args PassageID) (p Passage, ok bool, err error) {
	stmt := gorqlite.ParameterizedStatement{
		Query:     `select index_name, source, content, metadata, created_at from passage where index_name = ? and source = ?`,
		Arguments: []any{args.Index, args.Source},
	}
	result, err := q.conn.QueryOneParameterizedContext(ctx, stmt)
	if err != nil {
		return Passage{}, false, err
	}
	if !result.Next() {
		return Passage{}, false, nil
	}
	var metadataJSON string
	if err = result.Scan(&p.Index, &p.Source, &p.Content, &metadataJSON, &p.CreatedAt); err != nil {
		return Passage{}, false, err
	}
	if err = json.Unmarshal([]byte(metadataJSON), &p.Metadata); err != nil {
		return Passage{}, false, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return p, true, nil
}

func (q *Queries) PassageCount(ctx context.Context, index string) (n int64, err error) {
	stmt := gorqlite.ParameterizedStatement{
		Query:     `select count(*) from passage where index_name = ?`,
		Arguments: []any{index},
	}
	result, err := q.conn.QueryOneParameterizedContext(ctx, stmt)
	if err != nil {
		return 0, err
	}
	if !result.Next() {
		return 0, nil
	}
	err = result.Scan(&n)
	return n, err
}

type PassageNearestArgs struct {
	Index     string
	Embedding []float32
	Limit     int
}

type PassageNearestResult struct {
	RowID    int64
	Source   string
	Content  string
	Metadata map[string]string
	Distance float64
}

// PassageNearest returns the closest passages of an index, nearest first.
func (q *Queries) PassageNearest(ctx context.Context, args PassageNearestArgs) (passages []PassageNearestResult, err error) {
	inputEmbeddingJSON, err := json.Marshal(args.Embedding)
	if err != nil {
		return passages, fmt.Errorf("failed to marshal input embedding: %w", err)
	}
	stmt := gorqlite.ParameterizedStatement{
		Query: `with nearest as (
  select passage_rowid, distance
  from passage_vec
  where index_name = ? and embedding match ?
  order by distance asc
  limit ?
)
select
  n.passage_rowid,
  p.source,
  p.content,
  p.metadata,
  n.distance
from nearest n
inner join passage p on p.rowid = n.passage_rowid
order by n.distance asc;`,
		Arguments: []any{args.Index, string(inputEmbeddingJSON), args.Limit},
	}
	result, err := q.conn.QueryOneParameterizedContext(ctx, stmt)
	if err != nil {
		return passages, err
	}
	for result.Next() {
		var p PassageNearestResult
		var metadataJSON string
		if err = result.Scan(&p.RowID, &p.Source, &p.Content, &metadataJSON, &p.Distance); err != nil {
			return passages, err
		}
		if err = json.Unmarshal([]byte(metadataJSON), &p.Metadata); err != nil {
			return passages, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		passages = append(passages, p)
	}
	return passages, nil
}

var vectorColumn = regexp.MustCompile(`float\[(\d+)\]`)

// ParseEmbeddingDimension returns the vector size declared by a vec0 table definition.
func ParseEmbeddingDimension(sql string) (int, error) {
	m := vectorColumn.FindStringSubmatch(sql)
	if m == nil {
		return 0, fmt.Errorf("no float vector column in %q", sql)
	}
	return strconv.Atoi(m[1])
}

// EmbeddingDimension returns the vector size of the passage_vec table.
func (q *Queries) EmbeddingDimension(ctx context.Context) (n int, err error) {
	result, err := q.conn.QueryOneContext(ctx, `select sql from sqlite_master where name = 'passage_vec'`)
	if err != nil {
		return 0, err
	}
	if !result.Next() {
		return 0, fmt.Errorf("passage_vec table not found")
	}
	var sql string
	if err = result.Scan(&sql); err != nil {
		return 0, err
	}
	return ParseEmbeddingDimension(sql)
}
