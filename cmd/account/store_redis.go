package account

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Hash fields of an account record.
const (
	redisFieldID               = "id"
	redisFieldName             = "name"
	redisFieldEmail            = "email"
	redisFieldPasswordHash     = "password_hash"
	redisFieldRole             = "role"
	redisFieldActiveCredential = "active_credential"
	redisFieldCreatedAt        = "created_at"
)

const (
	redisInsertOK            int64 = 0
	redisInsertIDExists      int64 = 1
	redisInsertEmailConflict int64 = 2
)

// KEYS: account hash, email index, id set. ARGV: id, then field/value pairs.
const insertAccountScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 1
end
if redis.call("EXISTS", KEYS[2]) == 1 then
  return 2
end
redis.call("HSET", KEYS[1], unpack(ARGV, 2))
redis.call("SET", KEYS[2], ARGV[1])
redis.call("SADD", KEYS[3], ARGV[1])
return 0
`

// KEYS: account hash. ARGV: credential.
const setCredentialScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "active_credential", ARGV[1])
return 1
`

// KEYS: account hash, email index, id set. ARGV: email, id.
const deleteAccountScript = `
local email = redis.call("HGET", KEYS[1], "email")
if not email or email ~= ARGV[1] then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("DEL", KEYS[2])
redis.call("SREM", KEYS[3], ARGV[2])
return 1
`

var (
	insertAccountLua = redis.NewScript(insertAccountScript)
	setCredentialLua = redis.NewScript(setCredentialScript)
	deleteAccountLua = redis.NewScript(deleteAccountScript)
)

// RedisStore implements Store over Redis hashes.
//
// Layout (all keys share the {prefix} hash tag so scripts stay single-slot on a cluster):
//
//	{prefix}:acct:<id>      hash with the account fields
//	{prefix}:email:<email>  string holding the owning id
//	{prefix}:accounts       set of all ids
//
// Insert checks id and email inside one script, so email uniqueness is strict here.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisStore constructs a RedisStore. An empty prefix uses "authgate".
func NewRedisStore(rdb redis.UniversalClient, prefix string) (*RedisStore, error) {
	if rdb == nil {
		return nil, fmt.Errorf("account: nil redis client")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "authgate"
	}
	return &RedisStore{rdb: rdb, prefix: "{" + prefix + "}"}, nil
}

func (s *RedisStore) accountKey(id string) string { return s.prefix + ":acct:" + id }
func (s *RedisStore) emailKey(email string) string {
	return s.prefix + ":email:" + NormalizeEmail(email)
}
func (s *RedisStore) idsKey() string { return s.prefix + ":accounts" }

// GetByID loads an account hash.
func (s *RedisStore) GetByID(ctx context.Context, id string) (Account, error) {
	const op = "account.RedisStore.GetByID"

	fields, err := s.rdb.HGetAll(ctx, s.accountKey(id)).Result()
	if err != nil {
		return Account{}, backendError(op, err)
	}
	if len(fields) == 0 {
		return Account{}, NotFoundError{Op: op, ID: id}
	}
	a, err := redisDecode(fields)
	if err != nil {
		return Account{}, backendError(op, err)
	}
	return a, nil
}

// GetByEmail resolves the email index and loads the account.
func (s *RedisStore) GetByEmail(ctx context.Context, email string) (Account, error) {
	const op = "account.RedisStore.GetByEmail"

	id, err := s.rdb.Get(ctx, s.emailKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return Account{}, NotFoundError{Op: op}
	}
	if err != nil {
		return Account{}, backendError(op, err)
	}

	a, err := s.GetByID(ctx, id)
	if IsNotFound(err) {
		return Account{}, NotFoundError{Op: op}
	}
	return a, err
}

// Insert writes the hash, the email index and the id set in one script.
func (s *RedisStore) Insert(ctx context.Context, a Account) (Account, error) {
	const op = "account.RedisStore.Insert"

	if err := validateNew(op, a); err != nil {
		return Account{}, err
	}
	a = a.clone()
	a.Email = NormalizeEmail(a.Email)
	a.CreatedAt = a.CreatedAt.UTC()

	args := []any{a.ID}
	args = append(args, redisEncode(a)...)

	status, err := insertAccountLua.Run(ctx, s.rdb,
		[]string{s.accountKey(a.ID), s.emailKey(a.Email), s.idsKey()},
		args...,
	).Int64()
	if err != nil {
		return Account{}, backendError(op, err)
	}

	switch status {
	case redisInsertOK:
		return a, nil
	case redisInsertIDExists:
		return Account{}, ConflictError{Op: op, Field: "id"}
	case redisInsertEmailConflict:
		return Account{}, ConflictError{Op: op, Field: "email"}
	default:
		return Account{}, backendError(op, fmt.Errorf("unexpected script status %d", status))
	}
}

// SetActiveCredential overwrites the slot on an existing hash.
func (s *RedisStore) SetActiveCredential(ctx context.Context, id, credential string) error {
	const op = "account.RedisStore.SetActiveCredential"
	if credential == "" {
		return invalid(op, "empty credential")
	}

	updated, err := setCredentialLua.Run(ctx, s.rdb, []string{s.accountKey(id)}, credential).Int64()
	if err != nil {
		return backendError(op, err)
	}
	if updated == 0 {
		return NotFoundError{Op: op, ID: id}
	}
	return nil
}

// ClearActiveCredential removes the slot field. HDEL never creates a key.
func (s *RedisStore) ClearActiveCredential(ctx context.Context, id string) error {
	if err := s.rdb.HDel(ctx, s.accountKey(id), redisFieldActiveCredential).Err(); err != nil {
		return backendError("account.RedisStore.ClearActiveCredential", err)
	}
	return nil
}

// DeleteByIDAndEmail deletes the account only while the stored email matches.
func (s *RedisStore) DeleteByIDAndEmail(ctx context.Context, id, email string) (bool, error) {
	const op = "account.RedisStore.DeleteByIDAndEmail"

	deleted, err := deleteAccountLua.Run(ctx, s.rdb,
		[]string{s.accountKey(id), s.emailKey(email), s.idsKey()},
		NormalizeEmail(email), id,
	).Int64()
	if err != nil {
		return false, backendError(op, err)
	}
	return deleted == 1, nil
}

// ListNonAdmin loads every indexed account and filters out admins.
func (s *RedisStore) ListNonAdmin(ctx context.Context) ([]Account, error) {
	const op = "account.RedisStore.ListNonAdmin"

	ids, err := s.rdb.SMembers(ctx, s.idsKey()).Result()
	if err != nil {
		return nil, backendError(op, err)
	}
	if len(ids) == 0 {
		return []Account{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.accountKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, backendError(op, err)
	}

	out := make([]Account, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue // deleted between SMEMBERS and HGETALL
		}
		a, err := redisDecode(fields)
		if err != nil {
			return nil, backendError(op, err)
		}
		if a.Role == RoleAdmin {
			continue
		}
		out = append(out, a)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return backendError("account.RedisStore.Ping", err)
	}
	return nil
}

func redisEncode(a Account) []any {
	pairs := []any{
		redisFieldID, a.ID,
		redisFieldEmail, a.Email,
		redisFieldPasswordHash, a.PasswordHash,
		redisFieldRole, string(a.Role),
		redisFieldCreatedAt, a.CreatedAt.Format(time.RFC3339Nano),
	}
	if a.Name != nil {
		pairs = append(pairs, redisFieldName, *a.Name)
	}
	if a.ActiveCredential != nil {
		pairs = append(pairs, redisFieldActiveCredential, *a.ActiveCredential)
	}
	return pairs
}

func redisDecode(fields map[string]string) (Account, error) {
	role, ok := ParseRole(fields[redisFieldRole])
	if !ok {
		return Account{}, fmt.Errorf("account %s has unknown role %q", fields[redisFieldID], fields[redisFieldRole])
	}
	created, err := time.Parse(time.RFC3339Nano, fields[redisFieldCreatedAt])
	if err != nil {
		return Account{}, fmt.Errorf("account %s has bad created_at: %w", fields[redisFieldID], err)
	}

	a := Account{
		ID:           fields[redisFieldID],
		Email:        fields[redisFieldEmail],
		PasswordHash: fields[redisFieldPasswordHash],
		Role:         role,
		CreatedAt:    created.UTC(),
	}
	if name, ok := fields[redisFieldName]; ok {
		a.Name = &name
	}
	if cred, ok := fields[redisFieldActiveCredential]; ok && cred != "" {
		a.ActiveCredential = &cred
	}
	return a, nil
}
