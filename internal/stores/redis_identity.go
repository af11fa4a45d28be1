package stores

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/callvault/authcore/internal/account"
)

const defaultKeyPrefix = "ac"

// identityRecord is the persisted form of an identity. The live token fields
// mirror the token index keys so a superseded token can be invalidated and so
// the consume scripts can cross-check the hash against the winning index
// entry. Expiries are unix milliseconds so Lua can compare them numerically.
type identityRecord struct {
	account.Identity

	VerificationTokenHash string `json:"verification_token_hash,omitempty"`
	VerificationExpiresMs int64  `json:"verification_expires_ms,omitempty"`
	ResetTokenHash        string `json:"reset_token_hash,omitempty"`
	ResetExpiresMs        int64  `json:"reset_expires_ms,omitempty"`
}

// RedisIdentityStore implements account.Store on a Redis keyspace.
//
// Layout (all keys share the configured prefix):
//
//	<p>:id:<uuid>     JSON identityRecord
//	<p>:email:<norm>  identity ID
//	<p>:emp:<empid>   identity ID
//	<p>:evt:<hex>     identity ID, TTL = verification token lifetime
//	<p>:prt:<hex>     identity ID, TTL = reset token lifetime
type RedisIdentityStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRedisIdentityStore(client redis.UniversalClient, prefix string) *RedisIdentityStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisIdentityStore{redis: client, prefix: prefix}
}

func (s *RedisIdentityStore) idKey(id string) string        { return s.prefix + ":id:" + id }
func (s *RedisIdentityStore) emailKey(email string) string  { return s.prefix + ":email:" + email }
func (s *RedisIdentityStore) empKey(empID string) string    { return s.prefix + ":emp:" + empID }
func (s *RedisIdentityStore) verifyKey(hash string) string  { return s.prefix + ":evt:" + hash }
func (s *RedisIdentityStore) resetKey(hash string) string   { return s.prefix + ":prt:" + hash }

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", account.ErrUnavailable, err)
}

func (s *RedisIdentityStore) putRecord(ctx context.Context, rec identityRecord) error {
	encoded, err := json.Marshal(rec)
	if err != nil {
		return unavailable(err)
	}
	if err := s.redis.Set(ctx, s.idKey(rec.ID), encoded, 0).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *RedisIdentityStore) getRecord(ctx context.Context, id string) (identityRecord, error) {
	data, err := s.redis.Get(ctx, s.idKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return identityRecord{}, account.ErrNotFound
	}
	if err != nil {
		return identityRecord{}, unavailable(err)
	}

	var rec identityRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return identityRecord{}, unavailable(err)
	}
	return rec, nil
}

// Create reserves the email index with SETNX before writing the document, so
// two concurrent signups for one email cannot both succeed.
func (s *RedisIdentityStore) Create(ctx context.Context, identity account.Identity) error {
	reserved, err := s.redis.SetNX(ctx, s.emailKey(identity.Email), identity.ID, 0).Result()
	if err != nil {
		return unavailable(err)
	}
	if !reserved {
		return account.ErrDuplicateEmail
	}

	if err := s.putRecord(ctx, identityRecord{Identity: identity}); err != nil {
		// Release the reservation so the email is not burned by a half-write.
		s.redis.Del(ctx, s.emailKey(identity.Email))
		return err
	}
	return nil
}

func (s *RedisIdentityStore) GetByID(ctx context.Context, id string) (account.Identity, error) {
	rec, err := s.getRecord(ctx, id)
	if err != nil {
		return account.Identity{}, err
	}
	return rec.Identity, nil
}

func (s *RedisIdentityStore) getByIndex(ctx context.Context, indexKey string) (account.Identity, error) {
	id, err := s.redis.Get(ctx, indexKey).Result()
	if errors.Is(err, redis.Nil) {
		return account.Identity{}, account.ErrNotFound
	}
	if err != nil {
		return account.Identity{}, unavailable(err)
	}
	return s.GetByID(ctx, id)
}

func (s *RedisIdentityStore) GetByEmail(ctx context.Context, email string) (account.Identity, error) {
	return s.getByIndex(ctx, s.emailKey(email))
}

func (s *RedisIdentityStore) GetByEmployeeID(ctx context.Context, employeeID string) (account.Identity, error) {
	return s.getByIndex(ctx, s.empKey(employeeID))
}

func (s *RedisIdentityStore) UpdatePasswordHash(ctx context.Context, id, newHash string) error {
	rec, err := s.getRecord(ctx, id)
	if err != nil {
		return err
	}
	rec.PasswordHash = newHash
	rec.UpdatedAt = time.Now().UTC()
	return s.putRecord(ctx, rec)
}

func (s *RedisIdentityStore) setToken(
	ctx context.Context,
	id string,
	tokenHash [32]byte,
	expiresAt time.Time,
	reset bool,
) error {
	rec, err := s.getRecord(ctx, id)
	if err != nil {
		return err
	}

	hexHash := hex.EncodeToString(tokenHash[:])
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return fmt.Errorf("%w: token expiry is in the past", account.ErrUnavailable)
	}

	// Invalidate the prior live token before indexing the new one.
	if reset {
		if rec.ResetTokenHash != "" {
			s.redis.Del(ctx, s.resetKey(rec.ResetTokenHash))
		}
		rec.ResetTokenHash = hexHash
		rec.ResetExpiresMs = expiresAt.UnixMilli()
		if err := s.redis.Set(ctx, s.resetKey(hexHash), id, ttl).Err(); err != nil {
			return unavailable(err)
		}
	} else {
		if rec.VerificationTokenHash != "" {
			s.redis.Del(ctx, s.verifyKey(rec.VerificationTokenHash))
		}
		rec.VerificationTokenHash = hexHash
		rec.VerificationExpiresMs = expiresAt.UnixMilli()
		if err := s.redis.Set(ctx, s.verifyKey(hexHash), id, ttl).Err(); err != nil {
			return unavailable(err)
		}
	}

	return s.putRecord(ctx, rec)
}

func (s *RedisIdentityStore) SetVerificationToken(ctx context.Context, id string, tokenHash [32]byte, expiresAt time.Time) error {
	return s.setToken(ctx, id, tokenHash, expiresAt, false)
}

func (s *RedisIdentityStore) SetResetToken(ctx context.Context, id string, tokenHash [32]byte, expiresAt time.Time) error {
	return s.setToken(ctx, id, tokenHash, expiresAt, true)
}

// consumeVerifyLua burns a verification token in one atomic step: re-check
// the index entry, validate the record's live hash and expiry, then commit
// the verified record, the employee index, and the index deletion together.
// Any failure before the writes leaves the token live for a retry.
//
// KEYS[1] = token index key
// KEYS[2] = record key
// KEYS[3] = employee index key
// ARGV[1] = expected identity ID
// ARGV[2] = provided token hash (hex)
// ARGV[3] = now, unix milliseconds
// ARGV[4] = employee ID
// ARGV[5] = updated_at, RFC 3339
//
// Returns {record JSON, stored hash} on success, error 'not_found' otherwise.
var consumeVerifyLua = redis.NewScript(`
local id = redis.call('GET', KEYS[1])
if not id or id ~= ARGV[1] then
  return {err='not_found'}
end
local data = redis.call('GET', KEYS[2])
if not data then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end
local rec = cjson.decode(data)
local stored = rec['verification_token_hash']
if stored ~= ARGV[2] then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end
if tonumber(ARGV[3]) > tonumber(rec['verification_expires_ms'] or 0) then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end
rec['email_verified'] = true
rec['employee_id'] = ARGV[4]
rec['verification_token_hash'] = nil
rec['verification_expires_ms'] = nil
rec['updated_at'] = ARGV[5]
local encoded = cjson.encode(rec)
redis.call('SET', KEYS[2], encoded)
redis.call('SET', KEYS[3], id)
redis.call('DEL', KEYS[1])
return {encoded, stored}
`)

// consumeResetLua is the reset-flow counterpart of consumeVerifyLua: the
// password rotation and the index deletion commit together.
//
// KEYS[1] = token index key
// KEYS[2] = record key
// ARGV[1] = expected identity ID
// ARGV[2] = provided token hash (hex)
// ARGV[3] = now, unix milliseconds
// ARGV[4] = new password hash
// ARGV[5] = updated_at, RFC 3339
var consumeResetLua = redis.NewScript(`
local id = redis.call('GET', KEYS[1])
if not id or id ~= ARGV[1] then
  return {err='not_found'}
end
local data = redis.call('GET', KEYS[2])
if not data then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end
local rec = cjson.decode(data)
local stored = rec['reset_token_hash']
if stored ~= ARGV[2] then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end
if tonumber(ARGV[3]) > tonumber(rec['reset_expires_ms'] or 0) then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end
rec['password_hash'] = ARGV[4]
rec['reset_token_hash'] = nil
rec['reset_expires_ms'] = nil
rec['updated_at'] = ARGV[5]
local encoded = cjson.encode(rec)
redis.call('SET', KEYS[2], encoded)
redis.call('DEL', KEYS[1])
return {encoded, stored}
`)

// resolveTokenIndex maps a token hash to its identity ID. The index value for
// a given hash is written once and only ever deleted, so the consume script
// can safely re-check it by value.
func (s *RedisIdentityStore) resolveTokenIndex(ctx context.Context, key string) (string, error) {
	id, err := s.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", account.ErrTokenInvalid
	}
	if err != nil {
		return "", unavailable(err)
	}
	return id, nil
}

// decodeConsumed unpacks a consume script reply. Lua compares the hashes as
// plain strings; the authoritative constant-time comparison happens here, the
// same defense-in-depth split Redis script consumers need.
func decodeConsumed(res interface{}, provided [32]byte) (account.Identity, error) {
	parts, ok := res.([]interface{})
	if !ok || len(parts) != 2 {
		return account.Identity{}, fmt.Errorf("%w: unexpected consume reply", account.ErrUnavailable)
	}
	data, okData := parts[0].(string)
	storedHex, okHash := parts[1].(string)
	if !okData || !okHash {
		return account.Identity{}, fmt.Errorf("%w: unexpected consume reply", account.ErrUnavailable)
	}
	if !tokenMatches(storedHex, provided) {
		return account.Identity{}, account.ErrTokenInvalid
	}

	var rec identityRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return account.Identity{}, unavailable(err)
	}
	return rec.Identity, nil
}

func (s *RedisIdentityStore) ConsumeVerificationToken(
	ctx context.Context,
	tokenHash [32]byte,
	employeeID string,
	now time.Time,
) (account.Identity, error) {
	hexHash := hex.EncodeToString(tokenHash[:])
	indexKey := s.verifyKey(hexHash)

	id, err := s.resolveTokenIndex(ctx, indexKey)
	if err != nil {
		return account.Identity{}, err
	}

	res, err := consumeVerifyLua.Run(ctx, s.redis,
		[]string{indexKey, s.idKey(id), s.empKey(employeeID)},
		id, hexHash, now.UnixMilli(), employeeID, now.UTC().Format(time.RFC3339Nano),
	).Result()
	if err != nil {
		if err.Error() == "not_found" {
			return account.Identity{}, account.ErrTokenInvalid
		}
		return account.Identity{}, unavailable(err)
	}
	return decodeConsumed(res, tokenHash)
}

func (s *RedisIdentityStore) ConsumeResetToken(
	ctx context.Context,
	tokenHash [32]byte,
	newHash string,
	now time.Time,
) (account.Identity, error) {
	hexHash := hex.EncodeToString(tokenHash[:])
	indexKey := s.resetKey(hexHash)

	id, err := s.resolveTokenIndex(ctx, indexKey)
	if err != nil {
		return account.Identity{}, err
	}

	res, err := consumeResetLua.Run(ctx, s.redis,
		[]string{indexKey, s.idKey(id)},
		id, hexHash, now.UnixMilli(), newHash, now.UTC().Format(time.RFC3339Nano),
	).Result()
	if err != nil {
		if err.Error() == "not_found" {
			return account.Identity{}, account.ErrTokenInvalid
		}
		return account.Identity{}, unavailable(err)
	}
	return decodeConsumed(res, tokenHash)
}

// tokenMatches compares the stored hex hash against a raw hash without
// leaking position information through early exit.
func tokenMatches(storedHex string, provided [32]byte) bool {
	stored, err := hex.DecodeString(storedHex)
	if err != nil || len(stored) != len(provided) {
		return false
	}
	return subtle.ConstantTimeCompare(stored, provided[:]) == 1
}
