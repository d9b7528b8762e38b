// internal/models/asset.go
package models

// AssetState 表示生成资产的状态
type AssetState string

const (
	AssetNotStarted AssetState = "not_started" // 尚未尝试生成
	AssetPending    AssetState = "pending"     // 生成中
	AssetReady      AssetState = "ready"       // 生成完成，Value有效
	AssetFailed     AssetState = "failed"      // 生成失败，Error保留失败原因
)

// Asset 表示一个由外部服务生成的资产引用（图片URL、视频URL、数据URI等）
// 状态与值一起携带，消费方不需要用空字符串猜测加载状态
type Asset struct {
	State AssetState `json:"state"`
	Value string     `json:"value,omitempty"`
	Error string     `json:"error,omitempty"`
}

// NewAsset 创建一个未开始的资产
func NewAsset() Asset {
	return Asset{State: AssetNotStarted}
}

// PendingAsset 创建一个生成中的资产
func PendingAsset() Asset {
	return Asset{State: AssetPending}
}

// ReadyAsset 创建一个已完成的资产
func ReadyAsset(value string) Asset {
	return Asset{State: AssetReady, Value: value}
}

// FailedAsset 创建一个失败的资产
func FailedAsset(err error) Asset {
	a := Asset{State: AssetFailed}
	if err != nil {
		a.Error = err.Error()
	}
	return a
}

// IsReady 判断资产是否已就绪
func (a Asset) IsReady() bool {
	return a.State == AssetReady && a.Value != ""
}

// IsPending 判断资产是否生成中
func (a Asset) IsPending() bool {
	return a.State == AssetPending
}
