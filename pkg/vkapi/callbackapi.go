package vkapi

import (
	"crypto/subtle"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/tidwall/gjson"
	"go.mau.fi/util/requestlog"
)

const maxCallbackBodySize = 1 << 20

type CallbackConfig struct {
	// Confirmation is the string returned for the confirmation request.
	Confirmation string `yaml:"confirmation"`
	// Secret must match the secret field of every request when non-empty.
	Secret string `yaml:"secret"`
	Path   string `yaml:"path"`
}

// CallbackServer receives Callback API requests and feeds them into the
// client's update queue, where they are dispatched like structured long-poll
// updates.
type CallbackServer struct {
	client *Client
	config CallbackConfig
	log    zerolog.Logger
}

func (c *Client) NewCallbackServer(cfg CallbackConfig) *CallbackServer {
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	return &CallbackServer{
		client: c,
		config: cfg,
		log:    c.Logger.With().Str("component", "callback_api").Logger(),
	}
}

// Router returns the HTTP handler of the receiver.
func (cs *CallbackServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(hlog.NewHandler(cs.log))
	r.Use(requestlog.AccessLogger(requestlog.Options{Recover: true}))
	r.Post(cs.config.Path, cs.handleEvent)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(text))
}

func (cs *CallbackServer) handleEvent(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBodySize))
	if err != nil {
		log.Err(err).Msg("Failed to read callback request")
		writeText(w, http.StatusBadRequest, "failed to read body")
		return
	} else if !gjson.ValidBytes(body) {
		writeText(w, http.StatusBadRequest, "invalid json")
		return
	}
	evt := gjson.ParseBytes(body)
	groupID := evt.Get("group_id").Int()
	if expected := cs.client.config.GroupID; expected != 0 && groupID != expected {
		log.Warn().Int64("group_id", groupID).Msg("Callback request for another group")
		writeText(w, http.StatusForbidden, "wrong group")
		return
	}
	if evt.Get("type").String() == "confirmation" {
		log.Info().Int64("group_id", groupID).Msg("Answering confirmation request")
		writeText(w, http.StatusOK, cs.config.Confirmation)
		return
	}
	if cs.config.Secret != "" &&
		subtle.ConstantTimeCompare([]byte(evt.Get("secret").String()), []byte(cs.config.Secret)) != 1 {
		log.Warn().Msg("Callback request secret doesn't match")
		writeText(w, http.StatusForbidden, "bad secret")
		return
	}
	cs.client.queue.PutAll([]gjson.Result{evt})
	writeText(w, http.StatusOK, "ok")
}
