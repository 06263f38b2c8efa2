package dto

type CreateChannelRequest struct {
	Name string `json:"name"`
}

type RegisterDeviceRequest struct {
	Platform string `json:"platform"`
	Token    string `json:"token"`
}
