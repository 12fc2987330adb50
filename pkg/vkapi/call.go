package vkapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/Storm-bit/vk-bot-sdk/pkg/vkapi/types"
)

func (c *Client) methodURL(method string) string {
	return strings.TrimSuffix(c.config.BaseURL, "/") + "/method/" + method
}

// CallSync performs a single API call outside the batching executor and
// returns the content of the "response" field. Failures are logged and
// returned along with an empty result; API-level errors are *types.APIError.
func (c *Client) CallSync(ctx context.Context, method string, params Params) (gjson.Result, error) {
	if c == nil {
		return gjson.Result{}, ErrClientIsNil
	}
	log := c.Logger.With().Str("method", method).Logger()
	values, err := ToValues(params)
	if err != nil {
		log.Err(err).Msg("Failed to convert call parameters")
		return gjson.Result{}, err
	}
	envelope, err := c.callMethod(ctx, method, values)
	if err != nil {
		log.Err(err).Msg("Synchronous API call failed")
		return gjson.Result{}, err
	}
	return envelope.Get("response"), nil
}

// ExecuteCode runs raw VKScript through the execute method.
func (c *Client) ExecuteCode(ctx context.Context, code string) (gjson.Result, error) {
	return c.CallSync(ctx, "execute", P("code", code))
}

// callMethod posts one method call and returns the whole decoded envelope so
// that callers can see both "response" and "execute_errors".
func (c *Client) callMethod(ctx context.Context, method string, values *Values) (gjson.Result, error) {
	form := values.Clone()
	form.Set("access_token", c.config.AccessToken)
	form.Set("v", c.config.APIVersion)
	if err := c.limiter.Wait(ctx); err != nil {
		return gjson.Result{}, fmt.Errorf("rate limiter: %w", err)
	}
	_, body, err := c.MakeRequest(ctx, c.methodURL(method), http.MethodPost, nil, []byte(form.Encode()), types.FORM)
	if err != nil {
		return gjson.Result{}, err
	}
	return parseAPIResponse(body)
}

func parseAPIResponse(body []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("%w: body is not valid json", ErrMalformedResponse)
	}
	envelope := gjson.ParseBytes(body)
	if errData := envelope.Get("error"); errData.Exists() {
		var apiErr types.APIError
		if err := json.Unmarshal([]byte(errData.Raw), &apiErr); err != nil {
			return gjson.Result{}, fmt.Errorf("%w: undecodable error object: %w", ErrMalformedResponse, err)
		}
		return gjson.Result{}, &apiErr
	}
	if !envelope.Get("response").Exists() {
		return gjson.Result{}, fmt.Errorf("%w: missing response field", ErrMalformedResponse)
	}
	return envelope, nil
}
