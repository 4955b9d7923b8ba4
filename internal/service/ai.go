package service

import (
	"encoding/json"

	"collaborative-board/internal/dto"
)

// AI 请求类型
const (
	AIShapeRecognition = "shape-recognition"
	AITextExtraction   = "text-extraction"
	AISuggestion       = "suggestion"
)

// AIService 返回固定的模拟分析结果，不保存任何状态。
type AIService struct{}

// NewAIService 创建 AIService 实例
func NewAIService() *AIService {
	return &AIService{}
}

// Process 根据请求类型生成 ai-response 负载
func (s *AIService) Process(req dto.AIRequest) dto.AIResponse {
	return dto.AIResponse{
		Type:     req.Type,
		Request:  req.Request,
		Response: mockAIResult(req.Type, req.Request),
	}
}

func mockAIResult(kind string, _ json.RawMessage) map[string]interface{} {
	switch kind {
	case AIShapeRecognition:
		return map[string]interface{}{
			"detectedShapes": []map[string]interface{}{
				{"type": "rectangle", "confidence": 0.95, "bounds": map[string]float64{"x": 10, "y": 10, "width": 100, "height": 50}},
				{"type": "circle", "confidence": 0.87, "bounds": map[string]float64{"x": 200, "y": 100, "width": 80, "height": 80}},
			},
			"suggestions": []string{
				"Consider aligning the rectangle with the grid",
				"The circle could be made perfectly round",
			},
		}
	case AITextExtraction:
		return map[string]interface{}{
			"extractedText": "Sample extracted text",
			"confidence":    0.88,
			"boundingBoxes": []interface{}{},
		}
	case AISuggestion:
		return map[string]interface{}{
			"suggestions": []map[string]string{
				{"type": "layout", "message": "Group related elements closer together"},
				{"type": "color", "message": "Use a consistent color palette for similar items"},
				{"type": "text", "message": "Increase the font size of headings for readability"},
			},
		}
	default:
		return map[string]interface{}{"error": "Unknown AI request type"}
	}
}
