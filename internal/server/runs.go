package server

import (
	"net/http"

	"github.com/alan-christopher/e91/e91"
	"github.com/alan-christopher/e91/e91/blockcipher"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

// A RunController serves the runs held by a Server. It implements Controller.
type RunController struct {
	GroupName string
	Svc       *Server
}

// GetGroupName returns the group name.
func (rc *RunController) GetGroupName() string {
	return rc.GroupName
}

// GetEndpointMap implements part of the interface Controller.
func (rc *RunController) GetEndpointMap() EndpointMap {
	return EndpointMap{
		urlMethodPair{"", "POST"}:            []gin.HandlerFunc{rc.handleCreateRun},
		urlMethodPair{":id", "GET"}:          []gin.HandlerFunc{rc.handleGetRun},
		urlMethodPair{":id", "DELETE"}:       []gin.HandlerFunc{rc.handleDeleteRun},
		urlMethodPair{":id/encrypt", "POST"}: []gin.HandlerFunc{rc.handleEncrypt},
		urlMethodPair{":id/decrypt", "POST"}: []gin.HandlerFunc{rc.handleDecrypt},
	}
}

// CorrelationInfo reports one term of the correlation test.
type CorrelationInfo struct {
	SenderDegrees   float64 `json:"senderDegrees"`
	ReceiverDegrees float64 `json:"receiverDegrees"`
	Expectation     float64 `json:"expectation"`
	StdErr          float64 `json:"stdErr"`
	Samples         int     `json:"samples"`
}

// RunInfo is the public view of a stored run.
type RunInfo struct {
	ID                   string            `json:"id"`
	Trials               int               `json:"trials"`
	KeyTrials            int               `json:"keyTrials"`
	TestTrials           int               `json:"testTrials"`
	Discarded            int               `json:"discarded"`
	QBER                 float64           `json:"qber"`
	S                    float64           `json:"s"`
	Threshold            float64           `json:"threshold"`
	StdErr               float64           `json:"stdErr"`
	EavesdropperDetected bool              `json:"eavesdropperDetected"`
	Correlations         []CorrelationInfo `json:"correlations"`
	Key                  string            `json:"key"`
}

// newRunInfo describes r. The Server's mu must be held.
func newRunInfo(r *storedRun) RunInfo {
	res := r.Result
	info := RunInfo{
		ID:                   r.ID.String(),
		Trials:               res.Stats.Trials,
		KeyTrials:            res.Stats.KeyTrials,
		TestTrials:           res.Stats.TestTrials,
		Discarded:            res.Stats.Discarded,
		QBER:                 res.Stats.QBER,
		S:                    res.Verdict.S,
		Threshold:            res.Verdict.Threshold,
		StdErr:               res.Verdict.StdErr,
		EavesdropperDetected: res.Verdict.EavesdropperDetected,
		Key:                  res.Key.String(),
	}
	for _, st := range res.Verdict.Statistics {
		info.Correlations = append(info.Correlations, CorrelationInfo{
			SenderDegrees:   st.Pair.Sender.Degrees(),
			ReceiverDegrees: st.Pair.Receiver.Degrees(),
			Expectation:     st.Expectation,
			StdErr:          st.StdErr,
			Samples:         st.Samples,
		})
	}
	return info
}

// statusFor maps an error from the protocol or the cipher to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, e91.ErrInvalidConfiguration),
		errors.Is(err, blockcipher.ErrMalformedCiphertext),
		errors.Is(err, blockcipher.ErrInvalidKeyLength):
		return http.StatusBadRequest
	case errors.Is(err, e91.ErrInsufficientSamples),
		errors.Is(err, e91.ErrInsufficientKeyMaterial):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errTooManyRuns):
		return http.StatusTooManyRequests
	case errors.Is(err, errRunNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}

func (rc *RunController) handleCreateRun(c *gin.Context) {
	var req RunRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, ParameterErrorList{"malformed request body: " + err.Error()})
			return
		}
	}
	pel := &ParameterErrorList{}
	pel.AppendIf(req.Trials < 0, "trials must not be negative")
	if len(*pel) > 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, pel)
		return
	}

	info, err := rc.Svc.CreateRun(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, info)
}

func (rc *RunController) handleGetRun(c *gin.Context) {
	info, err := rc.Svc.Info(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (rc *RunController) handleDeleteRun(c *gin.Context) {
	if !rc.Svc.DeleteRun(c.Param("id")) {
		abortWithError(c, errRunNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

type encryptRequest struct {
	Message string `json:"message"`
}

func (rc *RunController) handleEncrypt(c *gin.Context) {
	var req encryptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ParameterErrorList{"malformed request body: " + err.Error()})
		return
	}
	ct, err := rc.Svc.Encrypt(c.Param("id"), req.Message)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ciphertext": ct})
}

type decryptRequest struct {
	Ciphertext string `json:"ciphertext"`
	Party      string `json:"party"`
}

// handleDecrypt decrypts with the key the named party derives from its own
// bits. Under an eavesdropper the receiver's and adversary's keys generally
// differ from the sender's and the result is garbled.
func (rc *RunController) handleDecrypt(c *gin.Context) {
	var req decryptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ParameterErrorList{"malformed request body: " + err.Error()})
		return
	}
	pel := &ParameterErrorList{}
	req.Ciphertext = pel.AppendIfEmptyOrBlankSpaces(req.Ciphertext, "ciphertext must not be empty")
	if req.Party == "" {
		req.Party = e91.Receiver.String()
	}
	party, err := e91.ParseParty(req.Party)
	pel.AppendIf(err != nil, "party must be one of sender, receiver or adversary")
	if len(*pel) > 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, pel)
		return
	}

	pt, err := rc.Svc.Decrypt(c.Param("id"), party, req.Ciphertext)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"party": party.String(), "plaintext": pt})
}
