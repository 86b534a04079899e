package session

import (
	"encoding/gob"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultCookieName はセッションCookieの既定名です。
	DefaultCookieName = "apple_session"
	sessionIDKey      = "session_id"
)

// Flash はリダイレクト後に一度だけ表示するメッセージです。
type Flash struct {
	Category string // success / error / warning / info
	Message  string
}

func init() {
	gob.Register(Flash{})
	gob.Register([]interface{}{})
}

// Options はセッションCookieの設定です。
type Options struct {
	CookieName string
	MaxAge     time.Duration
	Secure     bool
}

// Tracker はブラウザごとのセッションIDを発行・保持します。
// セッションIDは検出結果の閲覧可否を決める唯一の鍵です。
type Tracker struct {
	store sessions.Store
	name  string
}

// NewTracker はstoreを用いるTrackerを生成します。
func NewTracker(store sessions.Store, name string) *Tracker {
	if name == "" {
		name = DefaultCookieName
	}
	return &Tracker{store: store, name: name}
}

// NewStore はRedisが利用可能な場合はRedisStoreを、そうでなければ署名付きCookieストアを返します。
// secret が空の場合はプロセスごとにランダムな鍵を生成するため、再起動でセッションは失われます。
func NewStore(rdb *redis.Client, secret string, opts Options) sessions.Store {
	key := []byte(secret)
	if secret == "" {
		slog.Warn("session secret is not configured; sessions will not survive restarts")
		key = securecookie.GenerateRandomKey(32)
	}

	cookie := &sessions.Options{
		Path:     "/",
		MaxAge:   int(opts.MaxAge / time.Second),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}

	if rdb != nil {
		s := NewRedisStore(rdb, "session", key)
		*s.Options() = *cookie
		return s
	}

	s := sessions.NewCookieStore(key)
	s.Options = cookie
	s.MaxAge(cookie.MaxAge)
	return s
}

// session はリクエストのセッションを返します。Cookieの検証に失敗した場合は
// 新しいセッションとして扱います。
func (t *Tracker) session(c *gin.Context) (*sessions.Session, error) {
	sess, err := t.store.Get(c.Request, t.name)
	if err != nil {
		if sess == nil {
			return nil, err
		}
		slog.Warn("discarding invalid session cookie", "error", err)
	}
	return sess, nil
}

// SessionID はセッションIDを返します。未発行の場合は新しいUUIDを発行して保存します。
func (t *Tracker) SessionID(c *gin.Context) (string, error) {
	sess, err := t.session(c)
	if err != nil {
		return "", err
	}
	if id, ok := sess.Values[sessionIDKey].(string); ok && id != "" {
		return id, nil
	}

	id := uuid.NewString()
	sess.Values[sessionIDKey] = id
	if err := sess.Save(c.Request, c.Writer); err != nil {
		return "", err
	}
	return id, nil
}

// AddFlash はフラッシュメッセージを追加して保存します。
func (t *Tracker) AddFlash(c *gin.Context, category, message string) error {
	sess, err := t.session(c)
	if err != nil {
		return err
	}
	sess.AddFlash(Flash{Category: category, Message: message})
	return sess.Save(c.Request, c.Writer)
}

// Flashes は保留中のフラッシュメッセージを取り出し、セッションから削除します。
func (t *Tracker) Flashes(c *gin.Context) ([]Flash, error) {
	sess, err := t.session(c)
	if err != nil {
		return nil, err
	}
	raw := sess.Flashes()
	if len(raw) == 0 {
		return nil, nil
	}
	if err := sess.Save(c.Request, c.Writer); err != nil {
		return nil, err
	}

	out := make([]Flash, 0, len(raw))
	for _, v := range raw {
		if f, ok := v.(Flash); ok {
			out = append(out, f)
		}
	}
	return out, nil
}
