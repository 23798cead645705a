package valuations

import "time"

type createRequest struct {
	AnnualRevenue    float64 `json:"annualRevenue"`
	MonthlyCosts     float64 `json:"monthlyCosts"`
	TaxRate          float64 `json:"taxRate"`
	GrowthProjection float64 `json:"growthProjection"`
	Sector           string  `json:"sector"`
	YearsInOperation int     `json:"yearsInOperation"`
	Differentiator   string  `json:"differentiator"`
}

func (r createRequest) toInputs() Inputs {
	return Inputs{
		AnnualRevenue:    r.AnnualRevenue,
		MonthlyCosts:     r.MonthlyCosts,
		TaxRate:          r.TaxRate,
		GrowthProjection: r.GrowthProjection,
		Sector:           r.Sector,
		YearsInOperation: r.YearsInOperation,
		Differentiator:   r.Differentiator,
	}
}

type valuationResponse struct {
	ID                 string         `json:"id"`
	Status             string         `json:"status"`
	Inputs             Inputs         `json:"inputs"`
	Result             map[string]any `json:"result,omitempty"`
	PresentationStatus string         `json:"presentationStatus"`
	ArtifactURL        *string        `json:"artifactUrl,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

func toResponse(v Valuation) valuationResponse {
	return valuationResponse{
		ID:                 v.ID,
		Status:             string(v.Status),
		Inputs:             v.Inputs,
		Result:             v.Result,
		PresentationStatus: string(v.PresentationStatus),
		ArtifactURL:        v.ArtifactURL,
		CreatedAt:          v.CreatedAt,
		UpdatedAt:          v.UpdatedAt,
	}
}

type listResponse struct {
	Items []valuationResponse `json:"items"`
}

func toListResponse(items []Valuation) listResponse {
	out := listResponse{Items: make([]valuationResponse, 0, len(items))}
	for _, v := range items {
		out.Items = append(out.Items, toResponse(v))
	}
	return out
}
