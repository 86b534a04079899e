// Package session はブラウザセッションの識別子とフラッシュメッセージを管理します。
package session

import (
	"context"
	"encoding/base32"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
)

var _ sessions.Store = (*RedisStore)(nil)

// RedisStore はセッション値をRedisに保存する sessions.Store 実装です。
// Cookieには署名済みのセッションIDのみを格納します。
type RedisStore struct {
	client  *redis.Client
	codecs  []securecookie.Codec
	encoder securecookie.GobEncoder
	options *sessions.Options
	prefix  string
	timeout time.Duration
}

// NewRedisStore はRedisStoreを生成します。keyPairs はCookie署名用の鍵です。
func NewRedisStore(client *redis.Client, prefix string, keyPairs ...[]byte) *RedisStore {
	if prefix == "" {
		prefix = "session"
	}
	return &RedisStore{
		client: client,
		codecs: securecookie.CodecsFromPairs(keyPairs...),
		options: &sessions.Options{
			Path:     "/",
			MaxAge:   86400 * 30,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		},
		prefix:  prefix,
		timeout: 3 * time.Second,
	}
}

// Options はストアが発行するCookieの既定オプションを返します。
func (s *RedisStore) Options() *sessions.Options {
	return s.options
}

// sessionKey returns the Redis key for a session.
func (s *RedisStore) sessionKey(id string) string {
	return fmt.Sprintf("%s:%s", s.prefix, id)
}

// Get はリクエスト単位のレジストリからセッションを返します。
func (s *RedisStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

// New はCookieのIDからセッションを読み込みます。Cookieがない、署名が不正、
// またはRedisにデータがない場合は新しいセッションを返します。
func (s *RedisStore) New(r *http.Request, name string) (*sessions.Session, error) {
	session := sessions.NewSession(s, name)
	opts := *s.options
	session.Options = &opts
	session.IsNew = true

	c, err := r.Cookie(name)
	if err != nil {
		return session, nil
	}
	if err := securecookie.DecodeMulti(name, c.Value, &session.ID, s.codecs...); err != nil {
		session.ID = ""
		return session, err
	}

	found, err := s.load(r.Context(), session)
	if err != nil {
		return session, err
	}
	session.IsNew = !found
	return session, nil
}

// Save はセッション値をRedisに書き込み、署名済みIDをCookieに設定します。
// MaxAge が負の場合はRedisから削除し、Cookieを失効させます。
func (s *RedisStore) Save(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	if session.Options.MaxAge < 0 {
		if session.ID != "" {
			if err := s.delete(r.Context(), session); err != nil {
				return err
			}
		}
		http.SetCookie(w, sessions.NewCookie(session.Name(), "", session.Options))
		return nil
	}

	if session.ID == "" {
		session.ID = newID()
	}
	if err := s.save(r.Context(), session); err != nil {
		return err
	}
	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, s.codecs...)
	if err != nil {
		return err
	}
	http.SetCookie(w, sessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}

func (s *RedisStore) load(ctx context.Context, session *sessions.Session) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	data, err := s.client.Get(ctx, s.sessionKey(session.ID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := s.encoder.Deserialize(data, &session.Values); err != nil {
		return false, fmt.Errorf("failed to decode session: %w", err)
	}
	return true, nil
}

func (s *RedisStore) save(ctx context.Context, session *sessions.Session) error {
	data, err := s.encoder.Serialize(session.Values)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ttl := time.Duration(session.Options.MaxAge) * time.Second
	if ttl == 0 {
		// ブラウザセッションCookieの場合もRedis側には期限を設けます。
		ttl = 24 * time.Hour
	}
	return s.client.Set(ctx, s.sessionKey(session.ID), data, ttl).Err()
}

func (s *RedisStore) delete(ctx context.Context, session *sessions.Session) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Del(ctx, s.sessionKey(session.ID)).Err()
}

// newID はCookieに載せるランダムなセッションIDを生成します。
func newID() string {
	return strings.TrimRight(base32.StdEncoding.EncodeToString(securecookie.GenerateRandomKey(32)), "=")
}
