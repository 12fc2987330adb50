package vkapi

import (
	"encoding/json"
)

type ButtonColor string

const (
	ColorPrimary   ButtonColor = "primary"
	ColorSecondary ButtonColor = "secondary"
	ColorNegative  ButtonColor = "negative"
	ColorPositive  ButtonColor = "positive"
)

type ButtonType string

const (
	ButtonText     ButtonType = "text"
	ButtonLocation ButtonType = "location"
	ButtonVKPay    ButtonType = "vkpay"
	ButtonOpenApp  ButtonType = "open_app"
	ButtonOpenLink ButtonType = "open_link"
)

type ButtonAction struct {
	Type    ButtonType `json:"type"`
	Label   string     `json:"label,omitempty"`
	Payload string     `json:"payload,omitempty"`
	Hash    string     `json:"hash,omitempty"`
	Link    string     `json:"link,omitempty"`
	AppID   int64      `json:"app_id,omitempty"`
	OwnerID int64      `json:"owner_id,omitempty"`
}

type Button struct {
	Action ButtonAction `json:"action"`
	Color  ButtonColor  `json:"color,omitempty"`
}

// Keyboard is the bot keyboard attached to messages.send. Rows are added with
// Row and filled with the button helpers.
type Keyboard struct {
	OneTime bool       `json:"one_time"`
	Inline  bool       `json:"inline,omitempty"`
	Buttons [][]Button `json:"buttons"`
}

func NewKeyboard(oneTime bool) *Keyboard {
	return &Keyboard{OneTime: oneTime, Buttons: [][]Button{}}
}

func NewInlineKeyboard() *Keyboard {
	return &Keyboard{Inline: true, Buttons: [][]Button{}}
}

// Row starts a new row of buttons.
func (kb *Keyboard) Row() *Keyboard {
	kb.Buttons = append(kb.Buttons, []Button{})
	return kb
}

func (kb *Keyboard) add(btn Button) *Keyboard {
	if len(kb.Buttons) == 0 {
		kb.Row()
	}
	last := len(kb.Buttons) - 1
	kb.Buttons[last] = append(kb.Buttons[last], btn)
	return kb
}

// payloadString encodes a payload the way the API expects: a JSON document
// inside a string field.
func payloadString(payload any) string {
	if payload == nil {
		return ""
	} else if str, ok := payload.(string); ok {
		return str
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return string(data)
}

func (kb *Keyboard) Text(label string, color ButtonColor, payload any) *Keyboard {
	return kb.add(Button{
		Action: ButtonAction{Type: ButtonText, Label: label, Payload: payloadString(payload)},
		Color:  color,
	})
}

func (kb *Keyboard) Location(payload any) *Keyboard {
	return kb.add(Button{Action: ButtonAction{Type: ButtonLocation, Payload: payloadString(payload)}})
}

func (kb *Keyboard) VKPay(hash string, payload any) *Keyboard {
	return kb.add(Button{Action: ButtonAction{Type: ButtonVKPay, Hash: hash, Payload: payloadString(payload)}})
}

func (kb *Keyboard) OpenApp(appID, ownerID int64, label, hash string) *Keyboard {
	return kb.add(Button{Action: ButtonAction{Type: ButtonOpenApp, AppID: appID, OwnerID: ownerID, Label: label, Hash: hash}})
}

func (kb *Keyboard) OpenLink(label, link string, payload any) *Keyboard {
	return kb.add(Button{Action: ButtonAction{Type: ButtonOpenLink, Label: label, Link: link, Payload: payloadString(payload)}})
}

func (kb *Keyboard) String() string {
	data, err := json.Marshal(kb)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// EmptyKeyboard hides a previously sent keyboard.
func EmptyKeyboard() *Keyboard {
	return &Keyboard{OneTime: true, Buttons: [][]Button{}}
}
