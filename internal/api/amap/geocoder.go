package amap

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/trailgazer/internal/models"
)

const defaultBaseURL = "https://restapi.amap.com"

// GeocoderClient 高德正向地理编码客户端
type GeocoderClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger

	// 缓存：同一地址重复启动访问时避免重复请求
	cache   map[string]*geocodeResult
	cacheMu sync.RWMutex
}

type geocodeResult struct {
	coord   models.Coordinate
	address *models.Address
}

// GeoResponse 高德地理编码响应
type GeoResponse struct {
	Status   string    `json:"status"`   // "1" 成功, "0" 失败
	Info     string    `json:"info"`     // 状态信息
	InfoCode string    `json:"infocode"` // 状态码
	Count    string    `json:"count"`    // 结果数量
	Geocodes []Geocode `json:"geocodes"` // 地理编码结果
}

// Geocode 单条地理编码结果
type Geocode struct {
	FormattedAddress string      `json:"formatted_address"` // 格式化地址
	Country          string      `json:"country"`
	Province         string      `json:"province"`
	City             interface{} `json:"city"`     // 可能为空数组 []
	District         interface{} `json:"district"` // 可能为空数组 []
	Street           interface{} `json:"street"`   // 可能为空数组 []
	Number           interface{} `json:"number"`   // 可能为空数组 []
	Location         string      `json:"location"` // "经度,纬度"
}

// interfaceToString 将 interface{} 转换为字符串
// 高德 API 返回的字段可能是字符串或空数组 []
func interfaceToString(v interface{}) string {
	if v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	default:
		return ""
	}
}

// NewGeocoderClient 创建高德地理编码客户端
func NewGeocoderClient(apiKey string, logger *zap.Logger) *GeocoderClient {
	return &GeocoderClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
		cache:  make(map[string]*geocodeResult),
	}
}

// SetBaseURL 覆盖 API 地址（测试用）
func (c *GeocoderClient) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}

// Geocode 正向地理编码：根据地址文本获取坐标和结构化地址
func (c *GeocoderClient) Geocode(ctx context.Context, address string) (models.Coordinate, *models.Address, error) {
	if c.apiKey == "" {
		return models.Coordinate{}, nil, fmt.Errorf("amap api key not configured")
	}
	if strings.TrimSpace(address) == "" {
		return models.Coordinate{}, nil, fmt.Errorf("empty address")
	}

	// 检查缓存
	c.cacheMu.RLock()
	if cached, ok := c.cache[address]; ok {
		c.cacheMu.RUnlock()
		return cached.coord, cached.address, nil
	}
	c.cacheMu.RUnlock()

	apiURL := fmt.Sprintf(
		"%s/v3/geocode/geo?key=%s&address=%s&output=JSON",
		c.baseURL,
		url.QueryEscape(c.apiKey),
		url.QueryEscape(address),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return models.Coordinate{}, nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Coordinate{}, nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Coordinate{}, nil, fmt.Errorf("amap api returned status %d", resp.StatusCode)
	}

	var result GeoResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return models.Coordinate{}, nil, fmt.Errorf("decode response: %w", err)
	}

	if result.Status != "1" {
		c.logger.Warn("Amap geocode failed",
			zap.String("info", result.Info),
			zap.String("infocode", result.InfoCode),
			zap.String("address", address))
		return models.Coordinate{}, nil, fmt.Errorf("amap api error: %s (code: %s)", result.Info, result.InfoCode)
	}

	if len(result.Geocodes) == 0 {
		return models.Coordinate{}, nil, fmt.Errorf("no geocode result for address")
	}

	best := result.Geocodes[0]
	coord, err := parseLocation(best.Location)
	if err != nil {
		return models.Coordinate{}, nil, fmt.Errorf("parse location %q: %w", best.Location, err)
	}

	structured := &models.Address{
		FormattedAddress: best.FormattedAddress,
		Country:          best.Country,
		Province:         best.Province,
		City:             interfaceToString(best.City),
		District:         interfaceToString(best.District),
		Street:           interfaceToString(best.Street),
		StreetNumber:     interfaceToString(best.Number),
	}

	// 存入缓存
	c.cacheMu.Lock()
	c.cache[address] = &geocodeResult{coord: coord, address: structured}
	// 限制缓存大小（简单策略：超过 10000 条清空）
	if len(c.cache) > 10000 {
		c.cache = make(map[string]*geocodeResult)
		c.cache[address] = &geocodeResult{coord: coord, address: structured}
	}
	c.cacheMu.Unlock()

	c.logger.Debug("Geocoded address",
		zap.String("address", address),
		zap.Float64("lat", coord.Latitude),
		zap.Float64("lng", coord.Longitude),
		zap.String("formatted", structured.FormattedAddress))

	return coord, structured, nil
}

// parseLocation 解析 "经度,纬度" 格式的坐标
func parseLocation(location string) (models.Coordinate, error) {
	parts := strings.Split(location, ",")
	if len(parts) != 2 {
		return models.Coordinate{}, fmt.Errorf("unexpected location format")
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return models.Coordinate{}, fmt.Errorf("parse longitude: %w", err)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return models.Coordinate{}, fmt.Errorf("parse latitude: %w", err)
	}
	return models.Coordinate{Latitude: lat, Longitude: lng}, nil
}

// IsConfigured 检查是否已配置 API Key
func (c *GeocoderClient) IsConfigured() bool {
	return c.apiKey != ""
}

// ClearCache 清空缓存
func (c *GeocoderClient) ClearCache() {
	c.cacheMu.Lock()
	c.cache = make(map[string]*geocodeResult)
	c.cacheMu.Unlock()
}

// CacheSize 获取缓存大小
func (c *GeocoderClient) CacheSize() int {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	return len(c.cache)
}
