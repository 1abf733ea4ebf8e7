package apperrors

import "errors"

// 错误码
const (
	CodeInvalidCommand     = 1001
	CodeInvalidCoordinate  = 1002
	CodeOutOfBounds        = 1003
	CodeNotYourTurn        = 1004
	CodeBadIdentification  = 1005
	CodeInvalidPlacement   = 1006
	CodeServerMaintenance  = 1101
	CodeTooManyConnections = 1102
)

// GameError 游戏错误（对局与会话共享）
type GameError struct {
	Code    int
	Message string
}

func (e *GameError) Error() string {
	return e.Message
}

// 预定义错误
var (
	ErrInvalidCommand     = &GameError{Code: CodeInvalidCommand, Message: "Invalid command"}
	ErrInvalidCoordinate  = &GameError{Code: CodeInvalidCoordinate, Message: "Invalid coordinate"}
	ErrOutOfBounds        = &GameError{Code: CodeOutOfBounds, Message: "Coordinate out of bounds"}
	ErrNotYourTurn        = &GameError{Code: CodeNotYourTurn, Message: "Not your turn, please wait"}
	ErrBadIdentification  = &GameError{Code: CodeBadIdentification, Message: "Expected: ID <token>"}
	ErrInvalidPlacement   = &GameError{Code: CodeInvalidPlacement, Message: "Invalid position"}
	ErrServerMaintenance  = &GameError{Code: CodeServerMaintenance, Message: "Server is under maintenance"}
	ErrTooManyConnections = &GameError{Code: CodeTooManyConnections, Message: "Server full"}
)

// CodeOf 取出错误链上的错误码，非 GameError 返回 0
func CodeOf(err error) int {
	var ge *GameError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return 0
}
