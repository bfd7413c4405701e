// Package detector implements the sliding-window statistical anomaly detector
// over accelerometer magnitudes.
package detector

import (
	"math"
	"sync"
)

const (
	// DefaultWindowSize 统计窗口长度
	DefaultWindowSize = 100
	// DefaultSensitivityMargin 阈值中的固定灵敏度余量（可调常数，不是单位换算）
	DefaultSensitivityMargin = 5.0
)

// Verdict 单个样本的判定结果
type Verdict struct {
	IsAnomalous bool    `json:"is_anomalous"`
	Magnitude   float64 `json:"magnitude"`
	Mean        float64 `json:"mean"`
	StdDev      float64 `json:"std_dev"`
	Threshold   float64 `json:"threshold"`
	// Samples 自上次 Reset 以来观察到的样本数
	Samples int `json:"samples"`
}

// WarmingUp 窗口未满时为 true，此时 Mean/Threshold 无意义
func (v Verdict) WarmingUp(windowSize int) bool {
	return v.Samples < windowSize
}

// AnomalyDetector 滑动窗口异常检测器
// threshold = mean + margin + stddev(n-1)，幅值严格大于阈值即为异常
type AnomalyDetector struct {
	mu      sync.Mutex
	window  *RingFloat
	margin  float64
	samples int
}

// New 创建检测器，windowSize < 2 时使用默认值
func New(windowSize int, margin float64) *AnomalyDetector {
	if windowSize < 2 {
		windowSize = DefaultWindowSize
	}
	return &AnomalyDetector{
		window: NewRingFloat(windowSize),
		margin: margin,
	}
}

// WindowSize 窗口长度
func (d *AnomalyDetector) WindowSize() int {
	return d.window.Cap()
}

// Observe 写入幅值并返回判定
// 窗口（含本次样本）未满之前始终非异常
func (d *AnomalyDetector) Observe(magnitude float64) Verdict {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.window.Push(magnitude)
	d.samples++

	v := Verdict{Magnitude: magnitude, Samples: d.samples}
	if d.window.Len() < d.window.Cap() {
		return v
	}

	values := d.window.Slice()
	v.Mean = mean(values)
	v.StdDev = sampleStdDev(values, v.Mean)
	v.Threshold = v.Mean + d.margin + v.StdDev
	v.IsAnomalous = magnitude > v.Threshold
	return v
}

// Reset 清空窗口，每个事故周期结束后调用一次
func (d *AnomalyDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.window.Reset()
	d.samples = 0
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var s float64
	for _, v := range values {
		s += v
	}
	return s / float64(len(values))
}

// sampleStdDev Bessel 校正的样本标准差，单元素时为 0
func sampleStdDev(values []float64, mu float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var ss float64
	for _, v := range values {
		d := v - mu
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)-1))
}
