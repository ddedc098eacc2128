// Package httpapi implements the HTTP/JSON frontend: a gin router
// translating `POST /model/<servable>[/version/<n>]:<method_name>` JSON
// bodies into PredictRequests and back, invoking the same facade.Dispatcher
// the gRPC frontend uses.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	pb "github.com/predictgrid/predictgrid/gen/go/predictgrid/v1"
	"github.com/predictgrid/predictgrid/internal/master/facade"
)

// Server wraps a gin.Engine bound to a facade.Dispatcher.
type Server struct {
	engine     *gin.Engine
	dispatcher *facade.Dispatcher
	timeout    time.Duration
}

// New builds the HTTP frontend's router.
func New(d *facade.Dispatcher, requestTimeout time.Duration) *Server {
	if requestTimeout <= 0 {
		requestTimeout = 120 * time.Second
	}
	s := &Server{dispatcher: d, timeout: requestTimeout}

	r := gin.New()
	r.Use(gin.Recovery())
	r.POST("/model/*path", s.handlePredict)
	s.engine = r
	return s
}

// Engine returns the underlying gin engine, for net/http.Server wiring or
// httptest-based exercising.
func (s *Server) Engine() *gin.Engine { return s.engine }

// route is the parsed form of /model/<servable>[/version/<n>]:<method_name>.
type route struct {
	servable string
	version  uint64
	method   string
}

func parseRoute(path string) (route, error) {
	path = strings.TrimPrefix(path, "/")
	colonIdx := strings.LastIndex(path, ":")
	if colonIdx < 0 || colonIdx == len(path)-1 {
		return route{}, fmt.Errorf("missing :method_name suffix in path %q", path)
	}
	method := path[colonIdx+1:]
	head := path[:colonIdx]

	if idx := strings.Index(head, "/version/"); idx >= 0 {
		servable := head[:idx]
		versionStr := head[idx+len("/version/"):]
		v, err := strconv.ParseUint(versionStr, 10, 64)
		if err != nil {
			return route{}, fmt.Errorf("invalid version segment %q", versionStr)
		}
		return route{servable: servable, version: v, method: method}, nil
	}
	return route{servable: head, version: 0, method: method}, nil
}

type requestBody struct {
	Instances interface{} `json:"instances"`
}

func (s *Server) handlePredict(c *gin.Context) {
	rt, err := parseRoute(c.Param("path"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_msg": err.Error()})
		return
	}

	var body requestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_msg": err.Error()})
		return
	}

	instances, err := decodeInstances(body.Instances)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_msg": err.Error()})
		return
	}

	req := &pb.PredictRequest{
		Spec:      &pb.ServableSpec{Name: rt.servable, VersionNumber: rt.version, MethodName: rt.method},
		Instances: instances,
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
	defer cancel()

	replyCh := make(chan *pb.PredictReply, 1)
	if err := s.dispatcher.Dispatch(req, func(r *pb.PredictReply) { replyCh <- r }); err != nil {
		c.JSON(http.StatusOK, gin.H{"error_msg": err.Error()})
		return
	}

	select {
	case reply := <-replyCh:
		c.JSON(http.StatusOK, encodeReply(reply))
	case <-ctx.Done():
		c.JSON(http.StatusOK, gin.H{"error_msg": "request timed out"})
	}
}

// ListenAndServe runs the HTTP frontend on addr.
func (s *Server) ListenAndServe(addr string) error {
	return s.engine.Run(addr)
}
