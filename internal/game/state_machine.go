package game

import (
	"context"
	"fmt"

	"github.com/wfunc/draw-guess/internal/errors"
	"go.uber.org/zap"
)

// Phase 回合阶段
type Phase string

const (
	PhaseLobby      Phase = "lobby"       // 大厅，无进行中的游戏
	PhaseRoundStart Phase = "round_start" // 已选出画手，等待选词
	PhaseDrawing    Phase = "drawing"     // 作画中，计时器运行
	PhaseRoundEnd   Phase = "round_end"   // 回合结算展示
	PhaseGameEnd    Phase = "game_end"    // 整局结束
)

// 阶段事件
const (
	EventStart       = "start"
	EventSelectWord  = "select_word"
	EventFinishRound = "finish_round"
	EventNext        = "next"
	EventGameOver    = "game_over"
	EventReset       = "reset"
)

// PhaseTransition 阶段转换定义
type PhaseTransition struct {
	From  Phase
	Event string
	To    Phase
}

// RoundMachine 房间回合状态机，由房间锁保护
type RoundMachine struct {
	roomCode    string
	current     Phase
	transitions map[string]PhaseTransition
	logger      *zap.Logger

	onPhaseChange func(from, to Phase, event string)
}

// NewRoundMachine 创建回合状态机
func NewRoundMachine(roomCode string, logger *zap.Logger) *RoundMachine {
	m := &RoundMachine{
		roomCode:    roomCode,
		current:     PhaseLobby,
		transitions: make(map[string]PhaseTransition),
		logger:      logger,
	}
	m.initTransitions()
	return m
}

// initTransitions 初始化阶段转换规则
func (m *RoundMachine) initTransitions() {
	// 大厅 -> 回合开始
	m.addTransition(PhaseTransition{From: PhaseLobby, Event: EventStart, To: PhaseRoundStart})

	// 回合开始 -> 作画（画手选词）
	m.addTransition(PhaseTransition{From: PhaseRoundStart, Event: EventSelectWord, To: PhaseDrawing})

	// 作画 -> 回合结束（倒计时结束或全员猜中）
	m.addTransition(PhaseTransition{From: PhaseDrawing, Event: EventFinishRound, To: PhaseRoundEnd})

	// 回合开始 -> 回合结束（画手选词前离开）
	m.addTransition(PhaseTransition{From: PhaseRoundStart, Event: EventFinishRound, To: PhaseRoundEnd})

	// 回合结束 -> 下一回合
	m.addTransition(PhaseTransition{From: PhaseRoundEnd, Event: EventNext, To: PhaseRoundStart})

	// 进行中 -> 整局结束（回合用完，或只剩一名玩家被强制结束）
	for _, from := range []Phase{PhaseRoundStart, PhaseDrawing, PhaseRoundEnd} {
		m.addTransition(PhaseTransition{From: from, Event: EventGameOver, To: PhaseGameEnd})
	}

	// 任何阶段 -> 大厅（重开或整局结束后清理）
	for _, from := range []Phase{PhaseLobby, PhaseRoundStart, PhaseDrawing, PhaseRoundEnd, PhaseGameEnd} {
		m.addTransition(PhaseTransition{From: from, Event: EventReset, To: PhaseLobby})
	}
}

// addTransition 添加阶段转换
func (m *RoundMachine) addTransition(t PhaseTransition) {
	m.transitions[transitionKey(t.From, t.Event)] = t
}

func transitionKey(phase Phase, event string) string {
	return fmt.Sprintf("%s:%s", phase, event)
}

// Trigger 触发事件，非法转换返回状态错误
func (m *RoundMachine) Trigger(ctx context.Context, event string) error {
	t, ok := m.transitions[transitionKey(m.current, event)]
	if !ok {
		return errors.Newf(errors.ErrInvalidTransition, "phase=%s event=%s", m.current, event)
	}

	from := m.current
	m.current = t.To

	if m.onPhaseChange != nil {
		m.onPhaseChange(from, m.current, event)
	}

	m.logger.Debug("阶段转换",
		zap.String("room", m.roomCode),
		zap.String("from", string(from)),
		zap.String("to", string(m.current)),
		zap.String("event", event))

	return nil
}

// Phase 当前阶段
func (m *RoundMachine) Phase() Phase {
	return m.current
}

// OnPhaseChange 设置阶段变更回调
func (m *RoundMachine) OnPhaseChange(fn func(from, to Phase, event string)) {
	m.onPhaseChange = fn
}

// InGame 是否处于一局游戏中
func (m *RoundMachine) InGame() bool {
	return m.current != PhaseLobby
}
