package network

// ErrConnectionClosedByServer is returned when the broker closes the websocket
type ErrConnectionClosedByServer struct{}

func (e *ErrConnectionClosedByServer) Error() string {
	return "connection closed by server"
}
