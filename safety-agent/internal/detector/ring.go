package detector

// RingFloat 固定容量的 float64 环形缓冲区
type RingFloat struct {
	data []float64
	pos  int
	full bool
}

// NewRingFloat 创建指定容量的环形缓冲区
func NewRingFloat(capacity int) *RingFloat {
	if capacity < 1 {
		capacity = 1
	}
	return &RingFloat{data: make([]float64, capacity)}
}

// Push 写入一个值，满时覆盖最旧的值
func (r *RingFloat) Push(v float64) {
	r.data[r.pos] = v
	r.pos++
	if r.pos >= len(r.data) {
		r.pos = 0
		r.full = true
	}
}

// Len 当前元素个数
func (r *RingFloat) Len() int {
	if r.full {
		return len(r.data)
	}
	return r.pos
}

// Cap 容量
func (r *RingFloat) Cap() int {
	return len(r.data)
}

// Slice 按写入顺序返回内容副本
func (r *RingFloat) Slice() []float64 {
	out := make([]float64, r.Len())
	if r.full {
		n := copy(out, r.data[r.pos:])
		copy(out[n:], r.data[:r.pos])
	} else {
		copy(out, r.data[:r.pos])
	}
	return out
}

// Reset 清空
func (r *RingFloat) Reset() {
	r.pos = 0
	r.full = false
}
