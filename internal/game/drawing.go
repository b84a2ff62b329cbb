package game

// 画板指令只接受作画阶段画手的操作，其余一律静默丢弃

func (s *Service) withArtist(connID, op string, fn func(room *Room, p *Player)) error {
	return s.withPlayer(connID, op, func(room *Room, p *Player) error {
		if room.machine.Phase() != PhaseDrawing || !room.isArtist(p) {
			return nil
		}
		fn(room, p)
		return nil
	})
}

// DrawStroke 追加笔画并转发给其他人，type 为 clear 的笔画按清屏处理
func (s *Service) DrawStroke(connID string, stroke Stroke) error {
	return s.withArtist(connID, "draw_stroke", func(room *Room, p *Player) {
		if stroke.Type == StrokeTypeClear {
			s.clearCanvas(room, p)
			return
		}
		if room.relay.Draw(stroke) {
			stroke.Type = ""
			s.bus.BroadcastExcept(room.code, p.ID, EventCanvasUpdate, stroke)
		}
	})
}

// ClearCanvas 清屏
func (s *Service) ClearCanvas(connID string) error {
	return s.withArtist(connID, "clear_canvas", s.clearCanvas)
}

func (s *Service) clearCanvas(room *Room, p *Player) {
	room.relay.Clear()
	s.bus.BroadcastExcept(room.code, p.ID, EventCanvasUpdate, Stroke{Type: StrokeTypeClear})
}

// UndoStroke 撤销最后一笔
func (s *Service) UndoStroke(connID string) error {
	return s.withArtist(connID, "undo_stroke", func(room *Room, p *Player) {
		if room.relay.Undo() {
			s.bus.BroadcastExcept(room.code, p.ID, EventUndoStroke, struct{}{})
		}
	})
}

// RedoStroke 重做一笔，stroke 为空时使用撤销栈
func (s *Service) RedoStroke(connID string, stroke *Stroke) error {
	return s.withArtist(connID, "redo_stroke", func(room *Room, p *Player) {
		if out, ok := room.relay.Redo(stroke); ok {
			s.bus.BroadcastExcept(room.code, p.ID, EventRedoStroke, RedoPayload{Stroke: out})
		}
	})
}
