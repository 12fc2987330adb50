package types

// LongPollQuery is the query string of one a_check request.
type LongPollQuery struct {
	Act       string `url:"act"`
	Key       string `url:"key"`
	TS        int64  `url:"ts"`
	Wait      int    `url:"wait"`
	Mode      int    `url:"mode,omitempty"`
	Version   int    `url:"version,omitempty"`
	MsgsLimit int    `url:"msgs_limit,omitempty"`
}

// UserLongPollServerParams are the parameters of messages.getLongPollServer.
type UserLongPollServerParams struct {
	NeedPTS   int `url:"need_pts"`
	LPVersion int `url:"lp_version"`
}

// GroupLongPollServerParams are the parameters of groups.getLongPollServer.
type GroupLongPollServerParams struct {
	GroupID int64 `url:"group_id"`
}

type LongPollFailure struct {
	Failed     int   `json:"failed"`
	TS         int64 `json:"ts,omitempty"`
	MinVersion int   `json:"min_version,omitempty"`
	MaxVersion int   `json:"max_version,omitempty"`
}
