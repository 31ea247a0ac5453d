package wire

// Command identifiers, bit-exact for wire compatibility.
type Command uint32

const (
	CmdOK                     Command = 100
	CmdError                  Command = 101
	CmdIsNotStarted           Command = 102
	CmdStartStreaming         Command = 200
	CmdEndStreaming           Command = 201
	CmdRestoreStreaming       Command = 202
	CmdStreamingData          Command = 203
	CmdStartLiveStreamViewing Command = 300
	CmdStartFileStreamViewing Command = 400
)

// ProtocolVersion is the only accepted value of the packet body's version field.
const ProtocolVersion uint32 = 1

func (c Command) String() string {
	switch c {
	case CmdOK:
		return "OK_STREAMING_RESPONSE"
	case CmdError:
		return "ERROR_STREAMING_RESPONSE"
	case CmdIsNotStarted:
		return "IS_NOT_STARTED_RESPONSE"
	case CmdStartStreaming:
		return "START_STREAMING"
	case CmdEndStreaming:
		return "END_STREAMING"
	case CmdRestoreStreaming:
		return "RESTORE_STREAMING"
	case CmdStreamingData:
		return "STREAMING_DATA"
	case CmdStartLiveStreamViewing:
		return "START_LIVE_STREAM_VIEWING"
	case CmdStartFileStreamViewing:
		return "START_FILE_STREAM_VIEWING"
	default:
		return "UNKNOWN_COMMAND"
	}
}
