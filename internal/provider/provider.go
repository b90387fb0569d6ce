package provider

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/langchou/trailgazer/internal/models"
	"github.com/langchou/trailgazer/internal/service"
	"github.com/langchou/trailgazer/pkg/ws"
)

// PolicyCommand 下发给 App 端的定位精度策略
type PolicyCommand struct {
	DesiredAccuracyM float64 `json:"desired_accuracy_m"`
	MinMovementM     float64 `json:"min_movement_m"`
}

// RegionCommand 下发给 App 端的围栏注册指令
type RegionCommand struct {
	RegionID  string  `json:"region_id"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	RadiusM   float64 `json:"radius_m,omitempty"`
}

// WSProvider 经 WebSocket 把策略和围栏指令推给 App 端定位提供方
// 指令是单向的：提供方的回应（位置样本、围栏事件、错误）走 HTTP 上报
type WSProvider struct {
	hub    *ws.Hub
	logger *zap.Logger
}

// NewWSProvider 创建 WebSocket 指令提供方
func NewWSProvider(hub *ws.Hub, logger *zap.Logger) *WSProvider {
	return &WSProvider{hub: hub, logger: logger}
}

// ApplyPolicy 推送定位精度策略
func (p *WSProvider) ApplyPolicy(policy service.AccuracyPolicy) {
	p.hub.BroadcastMessage(ws.MsgTypePolicyUpdate, PolicyCommand{
		DesiredAccuracyM: policy.DesiredAccuracyM,
		MinMovementM:     policy.MinMovementM,
	})
	p.logger.Debug("Pushed accuracy policy",
		zap.Float64("desired_accuracy_m", policy.DesiredAccuracyM),
		zap.Float64("min_movement_m", policy.MinMovementM))
}

// RegisterRegion 推送围栏注册指令
// 没有在线客户端时报错，调用方把围栏监控降级为纯距离判定
func (p *WSProvider) RegisterRegion(visitID string, center models.Coordinate, radiusM float64) error {
	if p.hub.ClientCount() == 0 {
		return fmt.Errorf("no provider client connected")
	}
	p.hub.BroadcastMessage(ws.MsgTypeRegionRegister, RegionCommand{
		RegionID:  visitID,
		Latitude:  center.Latitude,
		Longitude: center.Longitude,
		RadiusM:   radiusM,
	})
	return nil
}

// UnregisterRegion 推送围栏注销指令
func (p *WSProvider) UnregisterRegion(visitID string) error {
	p.hub.BroadcastMessage(ws.MsgTypeRegionUnregister, RegionCommand{RegionID: visitID})
	return nil
}

// StopUpdates 推送停止定位上报指令
func (p *WSProvider) StopUpdates() {
	p.hub.BroadcastMessage(ws.MsgTypeStopUpdates, struct{}{})
}
