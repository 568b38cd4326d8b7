package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

var prettyOptions = &pretty.Options{Width: 80, Indent: "  "}

var (
	emptyQueue = []byte(`{"metadata":{},"posts":[]}`)
	emptyLog   = []byte(`{"posted":[]}`)
)

// Store reads and rewrites the queue file and the posted log. Every write
// goes through update, which reads the whole file, applies a mutation to
// the raw JSON and atomically replaces the file. Fields this package does
// not know about survive the rewrite.
//
// There is no locking: concurrent writers race and the last one wins.
type Store struct {
	queuePath string
	logPath   string
	now       func() time.Time
}

// NewStore returns a Store over the given queue and posted-log paths.
func NewStore(queuePath, logPath string) *Store {
	return &Store{queuePath: queuePath, logPath: logPath, now: time.Now}
}

// QueuePath returns the queue file location.
func (s *Store) QueuePath() string { return s.queuePath }

// LogPath returns the posted log location.
func (s *Store) LogPath() string { return s.logPath }

// Load reads and decodes the queue file.
func (s *Store) Load(ctx context.Context) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	data, err := os.ReadFile(s.queuePath)
	if err != nil {
		return Document{}, fmt.Errorf("reading queue: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("parsing queue %s: %w", s.queuePath, err)
	}
	return doc, nil
}

// Next returns the first eligible item for slot. See SelectNext.
func (s *Store) Next(ctx context.Context, slot string, skip func(QueueItem) bool) (QueueItem, bool, error) {
	doc, err := s.Load(ctx)
	if err != nil {
		return QueueItem{}, false, err
	}
	it, ok := SelectNext(doc.Posts, slot, skip)
	return it, ok, nil
}

// Find returns the item with the given id.
func (s *Store) Find(ctx context.Context, id string) (QueueItem, error) {
	doc, err := s.Load(ctx)
	if err != nil {
		return QueueItem{}, err
	}
	for _, it := range doc.Posts {
		if it.ID == id {
			return it, nil
		}
	}
	return QueueItem{}, ErrNotFound
}

// Record marks the item posted with url and appends the matching audit
// record. If the queue write succeeds but the log append fails, the queue
// stays updated and the error says so.
func (s *Store) Record(ctx context.Context, id, url string) (AuditRecord, error) {
	if err := ctx.Err(); err != nil {
		return AuditRecord{}, err
	}
	at := s.now().UTC().Format(time.RFC3339)

	var item QueueItem
	err := s.update(s.queuePath, nil, func(doc []byte) ([]byte, error) {
		idx, it, err := findRaw(doc, id)
		if err != nil {
			return nil, err
		}
		if it.Done() {
			return nil, ErrAlreadyPosted
		}
		item = it

		prefix := fmt.Sprintf("posts.%d.", idx)
		sets := []struct {
			path  string
			value any
		}{
			{prefix + "posted", true},
			{prefix + "posted_at", at},
			{prefix + "tweet_url", url},
			{"metadata.updated", at},
			{"metadata.latest_tweet", url},
		}
		for _, set := range sets {
			if doc, err = sjson.SetBytes(doc, set.path, set.value); err != nil {
				return nil, fmt.Errorf("setting %s: %w", set.path, err)
			}
		}
		return doc, nil
	})
	if err != nil {
		return AuditRecord{}, err
	}

	rec := AuditRecord{
		ID:        item.ID,
		Content:   item.Body(),
		Platforms: item.Platforms,
		TweetURL:  url,
		PostedAt:  at,
		Note:      item.Note,
	}
	if rec.Platforms == nil {
		rec.Platforms = []string{}
	}
	if item.ReplyTo != "" {
		replyTo := item.ReplyTo
		rec.ReplyTo = &replyTo
	}
	if rec.Note == "" {
		rec.Note = fmt.Sprintf("%s post %s", item.Slot, item.ID)
	}

	if err := s.AppendAudit(ctx, rec); err != nil {
		return rec, fmt.Errorf("queue updated but posted log append failed: %w", err)
	}
	return rec, nil
}

// AppendAudit appends one record to the posted log, creating the file if
// needed. Both {"posted": [...]} and bare-array logs are accepted.
func (s *Store) AppendAudit(ctx context.Context, rec AuditRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding audit record: %w", err)
	}
	return s.update(s.logPath, emptyLog, func(doc []byte) ([]byte, error) {
		root := gjson.ParseBytes(doc)
		if root.IsArray() {
			return appendRawElement(root, raw), nil
		}
		if !root.Get("posted").Exists() {
			if doc, err = sjson.SetRawBytes(doc, "posted", []byte("[]")); err != nil {
				return nil, err
			}
		}
		return sjson.SetRawBytes(doc, "posted.-1", raw)
	})
}

// Audit returns all records of the posted log in append order. A missing
// log is empty.
func (s *Store) Audit(ctx context.Context) ([]AuditRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.logPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading posted log: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("parsing posted log %s: invalid JSON", s.logPath)
	}

	list := gjson.ParseBytes(data)
	if !list.IsArray() {
		list = list.Get("posted")
	}
	var out []AuditRecord
	for _, r := range list.Array() {
		var rec AuditRecord
		if err := json.Unmarshal([]byte(r.Raw), &rec); err != nil {
			return nil, fmt.Errorf("decoding posted log entry: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Enqueue appends a new unposted item to the end of the queue.
func (s *Store) Enqueue(ctx context.Context, item QueueItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := item.Validate(); err != nil {
		return fmt.Errorf("invalid queue item: %w", err)
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encoding queue item: %w", err)
	}
	return s.update(s.queuePath, emptyQueue, func(doc []byte) ([]byte, error) {
		if _, _, err := findRaw(doc, item.ID); err == nil {
			return nil, fmt.Errorf("queue item %q already exists", item.ID)
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return sjson.SetRawBytes(doc, "posts.-1", raw)
	})
}

// update is the single load/mutate/store path for both files. empty is
// used as the starting document when the file does not exist; nil means
// the file must exist.
func (s *Store) update(path string, empty []byte, mutate func(doc []byte) ([]byte, error)) error {
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && empty != nil:
		data = append([]byte(nil), empty...)
	case err != nil:
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("parsing %s: invalid JSON", path)
	}

	out, err := mutate(data)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, pretty.PrettyOptions(out, prettyOptions))
}

func findRaw(doc []byte, id string) (int, QueueItem, error) {
	posts := gjson.GetBytes(doc, "posts")
	if !posts.IsArray() {
		return -1, QueueItem{}, errors.New("queue file has no posts array")
	}
	for i, r := range posts.Array() {
		if r.Get("id").String() != id {
			continue
		}
		var it QueueItem
		if err := json.Unmarshal([]byte(r.Raw), &it); err != nil {
			return -1, QueueItem{}, fmt.Errorf("decoding queue item %q: %w", id, err)
		}
		return i, it, nil
	}
	return -1, QueueItem{}, ErrNotFound
}

func appendRawElement(arr gjson.Result, raw []byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for _, el := range arr.Array() {
		buf.WriteString(el.Raw)
		buf.WriteByte(',')
	}
	buf.Write(raw)
	buf.WriteByte(']')
	return buf.Bytes()
}

// writeFileAtomic replaces path via a temp file in the same directory so
// a crash never leaves a truncated file behind.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
