package protocol

// RESULT 负载
const (
	ResultHit     = "HIT"
	ResultMiss    = "MISS"
	ResultAlready = "ALREADY"
	ResultInvalid = "INVALID"
	ResultWin     = "WIN"
	ResultLose    = "LOSE"
	ResultForfeit = "FORFEIT"
)

// COMMAND / CONTROL 负载
const (
	CommandSendID   = "SEND-ID"
	CommandYourTurn = "YOUR-TURN"
	ControlPing     = "PING"
)

// 客户端指令
const (
	CmdIdentify = "ID"
	CmdFire     = "FIRE"
	CmdQuit     = "quit"
)

// 棋盘块哨兵行
const (
	GridOpponent       = "GRID_OPPONENT"
	GridSelf           = "GRID_SELF"
	GridOpponentLegacy = "GRID"
	GridEnd            = ""
)
