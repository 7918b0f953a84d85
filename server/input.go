package server

import "tankarena/protocol"

// 房间收件箱中的命令。连接协程只投递命令，所有状态修改都在房间协程中执行。

type joinCmd struct {
	id    PlayerID
	conn  Conn
	reply chan error
}

// updateCmd 上行的玩家状态；from 为发送连接的身份
type updateCmd struct {
	from PlayerID
	msg  protocol.Update
}

type shootCmd struct {
	from PlayerID
	msg  protocol.Shoot
}

// leaveCmd 只有 conn 与当前登记的连接一致时才移除，避免旧连接误删新连接
type leaveCmd struct {
	id   PlayerID
	conn Conn
}

type statusCmd struct {
	reply chan RoomStatus
}
