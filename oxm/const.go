package oxm

const (
	OFPXMC_NXM_0          = 0x0000
	OFPXMC_NXM_1          = 0x0001
	OFPXMC_OPENFLOW_BASIC = 0x8000
	OFPXMC_EXPERIMENTER   = 0xffff
)

const (
	OFPXMT_OFB_IN_PORT = iota
	OFPXMT_OFB_IN_PHY_PORT
	OFPXMT_OFB_METADATA
	OFPXMT_OFB_ETH_DST
	OFPXMT_OFB_ETH_SRC
	OFPXMT_OFB_ETH_TYPE
	OFPXMT_OFB_VLAN_VID
	OFPXMT_OFB_VLAN_PCP
	OFPXMT_OFB_IP_DSCP
	OFPXMT_OFB_IP_ECN
	OFPXMT_OFB_IP_PROTO
	OFPXMT_OFB_IPV4_SRC
	OFPXMT_OFB_IPV4_DST
	OFPXMT_OFB_TCP_SRC
	OFPXMT_OFB_TCP_DST
	OFPXMT_OFB_UDP_SRC
	OFPXMT_OFB_UDP_DST
	OFPXMT_OFB_SCTP_SRC
	OFPXMT_OFB_SCTP_DST
	OFPXMT_OFB_ICMPV4_TYPE
	OFPXMT_OFB_ICMPV4_CODE
	OFPXMT_OFB_ARP_OP
	OFPXMT_OFB_ARP_SPA
	OFPXMT_OFB_ARP_TPA
	OFPXMT_OFB_ARP_SHA
	OFPXMT_OFB_ARP_THA
	OFPXMT_OFB_IPV6_SRC
	OFPXMT_OFB_IPV6_DST
	OFPXMT_OFB_IPV6_FLABEL
	OFPXMT_OFB_ICMPV6_TYPE
	OFPXMT_OFB_ICMPV6_CODE
	OFPXMT_OFB_IPV6_ND_TARGET
	OFPXMT_OFB_IPV6_ND_SLL
	OFPXMT_OFB_IPV6_ND_TLL
	OFPXMT_OFB_MPLS_LABEL
	OFPXMT_OFB_MPLS_TC
	OFPXMT_OFB_MPLS_BOS
	OFPXMT_OFB_PBB_ISID
	OFPXMT_OFB_TUNNEL_ID
	OFPXMT_OFB_IPV6_EXTHDR
)

// OXM_OF_* identify a basic field. Length and mask bits are zero.
const (
	OXM_OF_IN_PORT        = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_IN_PORT<<9
	OXM_OF_IN_PHY_PORT    = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_IN_PHY_PORT<<9
	OXM_OF_METADATA       = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_METADATA<<9
	OXM_OF_ETH_DST        = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_ETH_DST<<9
	OXM_OF_ETH_SRC        = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_ETH_SRC<<9
	OXM_OF_ETH_TYPE       = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_ETH_TYPE<<9
	OXM_OF_VLAN_VID       = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_VLAN_VID<<9
	OXM_OF_VLAN_PCP       = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_VLAN_PCP<<9
	OXM_OF_IP_DSCP        = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_IP_DSCP<<9
	OXM_OF_IP_ECN         = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_IP_ECN<<9
	OXM_OF_IP_PROTO       = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_IP_PROTO<<9
	OXM_OF_IPV4_SRC       = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_IPV4_SRC<<9
	OXM_OF_IPV4_DST       = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_IPV4_DST<<9
	OXM_OF_TCP_SRC        = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_TCP_SRC<<9
	OXM_OF_TCP_DST        = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_TCP_DST<<9
	OXM_OF_UDP_SRC        = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_UDP_SRC<<9
	OXM_OF_UDP_DST        = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_UDP_DST<<9
	OXM_OF_SCTP_SRC       = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_SCTP_SRC<<9
	OXM_OF_SCTP_DST       = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_SCTP_DST<<9
	OXM_OF_ICMPV4_TYPE    = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_ICMPV4_TYPE<<9
	OXM_OF_ICMPV4_CODE    = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_ICMPV4_CODE<<9
	OXM_OF_ARP_OP         = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_ARP_OP<<9
	OXM_OF_ARP_SPA        = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_ARP_SPA<<9
	OXM_OF_ARP_TPA        = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_ARP_TPA<<9
	OXM_OF_ARP_SHA        = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_ARP_SHA<<9
	OXM_OF_ARP_THA        = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_ARP_THA<<9
	OXM_OF_IPV6_SRC       = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_IPV6_SRC<<9
	OXM_OF_IPV6_DST       = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_IPV6_DST<<9
	OXM_OF_IPV6_FLABEL    = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_IPV6_FLABEL<<9
	OXM_OF_ICMPV6_TYPE    = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_ICMPV6_TYPE<<9
	OXM_OF_ICMPV6_CODE    = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_ICMPV6_CODE<<9
	OXM_OF_IPV6_ND_TARGET = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_IPV6_ND_TARGET<<9
	OXM_OF_IPV6_ND_SLL    = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_IPV6_ND_SLL<<9
	OXM_OF_IPV6_ND_TLL    = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_IPV6_ND_TLL<<9
	OXM_OF_MPLS_LABEL     = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_MPLS_LABEL<<9
	OXM_OF_MPLS_TC        = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_MPLS_TC<<9
	OXM_OF_MPLS_BOS       = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_MPLS_BOS<<9
	OXM_OF_PBB_ISID       = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_PBB_ISID<<9
	OXM_OF_TUNNEL_ID      = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_TUNNEL_ID<<9
	OXM_OF_IPV6_EXTHDR    = OFPXMC_OPENFLOW_BASIC<<16 | OFPXMT_OFB_IPV6_EXTHDR<<9
)

// Reserved port numbers, as they appear in in_port values.
const (
	OFPP_MAX        = 0xffffff00
	OFPP_IN_PORT    = 0xfffffff8
	OFPP_TABLE      = 0xfffffff9
	OFPP_NORMAL     = 0xfffffffa
	OFPP_FLOOD      = 0xfffffffb
	OFPP_ALL        = 0xfffffffc
	OFPP_CONTROLLER = 0xfffffffd
	OFPP_LOCAL      = 0xfffffffe
	OFPP_ANY        = 0xffffffff
)
