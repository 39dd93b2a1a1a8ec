// Package redisstore keeps credential records in Redis hashes. Inserts and
// session updates run as Lua scripts so the identifier index and the
// refresh-hash compare-and-swap are atomic on the server.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nigussolomon/nonceauth/credential"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every client or script failure.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrRecordCorrupt is returned when a stored hash cannot be decoded.
var ErrRecordCorrupt = errors.New("redis record corrupt")

const (
	fieldAttributes = "attributes"
	fieldActive     = "is_active"
	fieldCreatedAt  = "created_at"
	fieldUpdatedAt  = "updated_at"
)

const insertScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1])
redis.call("HSET", KEYS[2], unpack(ARGV, 2))
return 1
`

var insertLua = redis.NewScript(insertScript)

const updateSessionScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end

local refresh_field = ARGV[1]
local access_field = ARGV[2]
local expect = ARGV[3]

if expect ~= "" then
  local current = redis.call("HGET", KEYS[1], refresh_field)
  if current ~= expect then
    return 0
  end
end

if ARGV[4] == "1" then
  redis.call("HSET", KEYS[1], refresh_field, ARGV[5])
end
if ARGV[6] == "1" then
  redis.call("HSET", KEYS[1], access_field, ARGV[7])
end
redis.call("HSET", KEYS[1], ARGV[9], ARGV[8])

return 1
`

var updateSessionLua = redis.NewScript(updateSessionScript)

// Store is a Redis-backed credential.Store. Ids are ULIDs.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	fields credential.FieldMap
	now    func() time.Time
}

var _ credential.Store = (*Store)(nil)

// New returns a Store using prefix as the key namespace. Empty field names
// fall back to credential.DefaultFieldMap.
func New(client redis.UniversalClient, prefix string, fields credential.FieldMap) *Store {
	if prefix == "" {
		prefix = "nonceauth"
	}
	return &Store{
		redis:  client,
		prefix: prefix,
		fields: fields.WithDefaults(),
		now:    time.Now,
	}
}

func (s *Store) userKey(id string) string {
	return s.prefix + ":user:" + id
}

func (s *Store) identKey(identifier string) string {
	return s.prefix + ":ident:" + identifier
}

func (s *Store) FindByIdentifier(ctx context.Context, identifier string, include ...credential.Field) (*credential.Record, error) {
	id, err := s.redis.Get(ctx, s.identKey(identifier)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, credential.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return s.FindByID(ctx, id, include...)
}

func (s *Store) FindByID(ctx context.Context, id string, include ...credential.Field) (*credential.Record, error) {
	values, err := s.redis.HGetAll(ctx, s.userKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(values) == 0 {
		return nil, credential.ErrNotFound
	}

	rec, err := s.decode(id, values)
	if err != nil {
		return nil, err
	}
	out := rec.Project(include)
	return &out, nil
}

func (s *Store) Insert(ctx context.Context, rec credential.Record) (*credential.Record, error) {
	now := s.now().UTC()
	rec.ID = ulid.Make().String()
	rec.RefreshNonceHash = ""
	rec.AccessNonceHash = ""
	rec.CreatedAt = now
	rec.UpdatedAt = now

	args, err := s.encode(rec)
	if err != nil {
		return nil, err
	}

	created, err := insertLua.Run(
		ctx,
		s.redis,
		[]string{s.identKey(rec.Identifier), s.userKey(rec.ID)},
		append([]interface{}{rec.ID}, args...)...,
	).Int64()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if created == 0 {
		return nil, credential.ErrExists
	}

	out := rec.Project(nil)
	return &out, nil
}

func (s *Store) UpdateSession(ctx context.Context, id string, upd credential.SessionUpdate) (int64, error) {
	n, err := updateSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.userKey(id)},
		s.fields.RefreshNonceHash,
		s.fields.AccessNonceHash,
		upd.ExpectRefreshHash,
		flag(upd.Refresh.Set),
		upd.Refresh.Value,
		flag(upd.Access.Set),
		upd.Access.Value,
		formatTime(s.now()),
		fieldUpdatedAt,
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *Store) encode(rec credential.Record) ([]interface{}, error) {
	attrs := []byte("{}")
	if len(rec.Attributes) > 0 {
		b, err := json.Marshal(rec.Attributes)
		if err != nil {
			return nil, err
		}
		attrs = b
	}

	return []interface{}{
		s.fields.Identifier, rec.Identifier,
		s.fields.Passkey, rec.PasswordHash,
		s.fields.RefreshNonceHash, "",
		s.fields.AccessNonceHash, "",
		fieldAttributes, string(attrs),
		fieldActive, flag(rec.Active),
		fieldCreatedAt, formatTime(rec.CreatedAt),
		fieldUpdatedAt, formatTime(rec.UpdatedAt),
	}, nil
}

func (s *Store) decode(id string, values map[string]string) (credential.Record, error) {
	rec := credential.Record{
		ID:               id,
		Identifier:       values[s.fields.Identifier],
		Active:           values[fieldActive] == "1",
		PasswordHash:     values[s.fields.Passkey],
		RefreshNonceHash: values[s.fields.RefreshNonceHash],
		AccessNonceHash:  values[s.fields.AccessNonceHash],
	}

	if raw := values[fieldAttributes]; raw != "" && raw != "{}" {
		if err := json.Unmarshal([]byte(raw), &rec.Attributes); err != nil {
			return credential.Record{}, fmt.Errorf("%w: attributes: %v", ErrRecordCorrupt, err)
		}
	}

	var err error
	if rec.CreatedAt, err = parseTime(values[fieldCreatedAt]); err != nil {
		return credential.Record{}, err
	}
	if rec.UpdatedAt, err = parseTime(values[fieldUpdatedAt]); err != nil {
		return credential.Record{}, err
	}
	return rec, nil
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func formatTime(t time.Time) string {
	return strconv.FormatInt(t.UTC().UnixNano(), 10)
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp: %v", ErrRecordCorrupt, err)
	}
	return time.Unix(0, n).UTC(), nil
}
