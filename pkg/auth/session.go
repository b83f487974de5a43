// Package auth identifies readers across requests.
//
// A reader signs in once and then keeps reading for days, so the cookie only
// carries an encrypted reference to server-side state kept in Redis. Session
// keys should be 32 or 64 bytes for HMAC and 16, 24 or 32 bytes for AES:
//
//	openssl rand -base64 32
package auth

import (
	"bytes"
	"context"
	"encoding/base32"
	"encoding/gob"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
)

const readerKeyPrefix = "bookreader:reader:"

// DefaultSessionMaxAge is used when StoreOptions.MaxAge is zero.
const DefaultSessionMaxAge = 30 * 24 * time.Hour

// StoreOptions configures a RedisStore.
type StoreOptions struct {
	AuthKey       []byte
	EncryptionKey []byte
	// MaxAge is the idle lifetime of a reader session. Every authenticated
	// request pushes the expiry forward by MaxAge.
	MaxAge time.Duration
	// Secure restricts the cookie to HTTPS. Enable it outside development.
	Secure bool
}

// RedisStore is a sessions.Store keeping reader sessions in Redis under
// "bookreader:reader:<id>". Values are gob-encoded.
type RedisStore struct {
	client  *redis.Client
	codecs  []securecookie.Codec
	maxAge  time.Duration
	options sessions.Options
}

// NewSessionStore creates a Redis-backed reader session store.
func NewSessionStore(client *redis.Client, opts StoreOptions) *RedisStore {
	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultSessionMaxAge
	}
	return &RedisStore{
		client: client,
		codecs: securecookie.CodecsFromPairs(opts.AuthKey, opts.EncryptionKey),
		maxAge: maxAge,
		options: sessions.Options{
			Path:     "/",
			MaxAge:   int(maxAge / time.Second),
			HttpOnly: true,
			Secure:   opts.Secure,
			SameSite: http.SameSiteLaxMode,
		},
	}
}

// Get returns the named session, cached per request by the gorilla registry.
func (s *RedisStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

// New loads the session referenced by the request cookie. A missing,
// tampered or expired reference yields a fresh session and no error, so the
// caller decides whether an anonymous request is acceptable.
func (s *RedisStore) New(r *http.Request, name string) (*sessions.Session, error) {
	session := sessions.NewSession(s, name)
	opts := s.options
	session.Options = &opts
	session.IsNew = true

	id, ok := s.decodeCookie(r, name)
	if !ok {
		return session, nil
	}
	if err := s.load(r.Context(), id, session); err != nil {
		return session, nil
	}
	session.ID = id
	session.IsNew = false
	return session, nil
}

// Save writes the session to Redis and refreshes the cookie. A negative
// MaxAge signs the reader out.
func (s *RedisStore) Save(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	if session.Options.MaxAge < 0 {
		if session.ID != "" {
			if err := s.client.Del(r.Context(), key(session.ID)).Err(); err != nil {
				return fmt.Errorf("delete reader session: %w", err)
			}
		}
		http.SetCookie(w, sessions.NewCookie(session.Name(), "", session.Options))
		return nil
	}

	if session.ID == "" {
		session.ID = newSessionID()
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(session.Values); err != nil {
		return fmt.Errorf("encode reader session: %w", err)
	}
	ttl := time.Duration(session.Options.MaxAge) * time.Second
	if err := s.client.Set(r.Context(), key(session.ID), buf.Bytes(), ttl).Err(); err != nil {
		return fmt.Errorf("store reader session: %w", err)
	}

	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, s.codecs...)
	if err != nil {
		return fmt.Errorf("encode session cookie: %w", err)
	}
	http.SetCookie(w, sessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}

// Touch pushes the expiry of a stored session forward by the store MaxAge.
func (s *RedisStore) Touch(ctx context.Context, session *sessions.Session) error {
	if session.IsNew || session.ID == "" {
		return nil
	}
	if err := s.client.Expire(ctx, key(session.ID), s.maxAge).Err(); err != nil {
		return fmt.Errorf("refresh reader session: %w", err)
	}
	return nil
}

func (s *RedisStore) decodeCookie(r *http.Request, name string) (string, bool) {
	c, err := r.Cookie(name)
	if err != nil {
		return "", false
	}
	var id string
	if err := securecookie.DecodeMulti(name, c.Value, &id, s.codecs...); err != nil {
		return "", false
	}
	return id, id != ""
}

func (s *RedisStore) load(ctx context.Context, id string, session *sessions.Session) error {
	data, err := s.client.Get(ctx, key(id)).Bytes()
	if err != nil {
		return fmt.Errorf("load reader session: %w", err)
	}
	return gob.NewDecoder(bytes.NewReader(data)).Decode(&session.Values)
}

func key(id string) string { return readerKeyPrefix + id }

func newSessionID() string {
	raw := base32.StdEncoding.EncodeToString(securecookie.GenerateRandomKey(32))
	return strings.TrimRight(raw, "=")
}
