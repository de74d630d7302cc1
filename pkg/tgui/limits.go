package tgui

import "errors"

// MaxCallbackDataLen is Telegram's callback_data size limit in bytes.
// NOTE: This is the length of the full string: "scope:action:payload".
const MaxCallbackDataLen = 64

// MaxTopicNameLen is the forum topic name limit in runes.
const MaxTopicNameLen = 128

var ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")
