package detector

import (
	"context"
	"math"

	"github.com/Renarion/hackathon-indrive-25/safety-agent/internal/models"
)

// Magnitude 三轴加速度的欧氏范数
func Magnitude(s models.Sample) float64 {
	return math.Sqrt(s.X*s.X + s.Y*s.Y + s.Z*s.Z)
}

// Magnitudes 将样本流转换为幅值流，保持到达顺序
// 输入关闭或 ctx 结束时关闭输出
func Magnitudes(ctx context.Context, samples <-chan models.Sample) <-chan float64 {
	out := make(chan float64)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case s, ok := <-samples:
				if !ok {
					return
				}
				select {
				case out <- Magnitude(s):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
