package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/monstrox/monstro/internal/invoice/domain"
)

const pdfContentType = "application/pdf"

func (s *Server) ListMyInvoices(c *gin.Context) {
	locationID, ok := pathID(c, "locationId")
	if !ok {
		return
	}

	var req invoicedomain.ListInvoiceRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	member, err := s.currentMember(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	req.MemberID = member.ID.String()

	resp, err := s.invoiceSvc.ListByLocation(c.Request.Context(), locationID.String(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Invoices, "page_info": resp.PageInfo})
}

func (s *Server) GetMyInvoice(c *gin.Context) {
	invoice, ok := s.ownedInvoice(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) GetMyInvoicePDF(c *gin.Context) {
	invoice, ok := s.ownedInvoice(c)
	if !ok {
		return
	}
	s.writeInvoicePDF(c, invoice)
}

// PayInvoice starts a card payment for an open invoice and returns the
// client secret the app confirms with.
func (s *Server) PayInvoice(c *gin.Context) {
	invoice, ok := s.ownedInvoice(c)
	if !ok {
		return
	}

	intent, err := s.paymentSvc.CreatePaymentIntent(c.Request.Context(), invoice.ID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": intent})
}

func (s *Server) ownedInvoice(c *gin.Context) (*invoicedomain.Invoice, bool) {
	id, ok := pathID(c, "id")
	if !ok {
		return nil, false
	}
	member, err := s.currentMember(c)
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	invoice, err := s.invoiceSvc.Get(c.Request.Context(), id.String())
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	if invoice.MemberID != member.ID {
		AbortWithError(c, invoicedomain.ErrNotFound)
		return nil, false
	}
	return invoice, true
}

func (s *Server) AdminListInvoices(c *gin.Context) {
	var req invoicedomain.ListInvoiceRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.ListByLocation(c.Request.Context(), c.Param("locationId"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Invoices, "page_info": resp.PageInfo})
}

func (s *Server) AdminGetInvoice(c *gin.Context) {
	invoice, ok := s.locationInvoice(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) AdminGetInvoicePDF(c *gin.Context) {
	invoice, ok := s.locationInvoice(c)
	if !ok {
		return
	}
	s.writeInvoicePDF(c, invoice)
}

func (s *Server) AdminVoidInvoice(c *gin.Context) {
	invoice, ok := s.locationInvoice(c)
	if !ok {
		return
	}

	voided, err := s.invoiceSvc.Void(c.Request.Context(), invoice.ID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": voided})
}

func (s *Server) AdminMarkInvoicePaid(c *gin.Context) {
	invoice, ok := s.locationInvoice(c)
	if !ok {
		return
	}

	var req invoicedomain.MarkPaidRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	paid, err := s.invoiceSvc.MarkPaid(c.Request.Context(), invoice.ID.String(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": paid})
}

func (s *Server) AdminSendInvoice(c *gin.Context) {
	invoice, ok := s.locationInvoice(c)
	if !ok {
		return
	}

	if err := s.invoiceSvc.Send(c.Request.Context(), invoice.ID.String()); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusAccepted)
}

func (s *Server) locationInvoice(c *gin.Context) (*invoicedomain.Invoice, bool) {
	id, ok := pathID(c, "id")
	if !ok {
		return nil, false
	}
	invoice, err := s.invoiceSvc.Get(c.Request.Context(), id.String())
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	if !inLocation(c, invoice.LocationID) {
		AbortWithError(c, invoicedomain.ErrNotFound)
		return nil, false
	}
	return invoice, true
}

func (s *Server) writeInvoicePDF(c *gin.Context, invoice *invoicedomain.Invoice) {
	body, err := s.invoiceSvc.RenderPDF(c.Request.Context(), invoice.ID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", "invoice-"+invoice.ID.String()+".pdf"))
	c.Data(http.StatusOK, pdfContentType, body)
}
